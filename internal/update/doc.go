// Package update keeps an installed build current by polling the project's
// GitHub releases feed.
//
// # Checking
//
// A [Checker] fetches the latest release once per call, strips a leading "v"
// from the tag and compares it with the running version using [IsNewer].
// Versions are compared component by component with missing trailing
// components treated as zero, so "1.0" and "1.0.0" are equal. Segments that
// are not plain non-negative integers are ignored.
//
// Concurrent checks share a single request. The checker refuses to start
// when the connectivity probe reports the host offline.
//
// # Downloading
//
// [Downloader.DownloadAndInstall] fetches the installer asset in the
// background and returns a [Download] handle. The handle resolves exactly
// once to [Succeeded] or [Failed]; the [Installer] is only invoked after a
// successful download.
//
// # Lifecycle
//
// A [Manager] drives one check-and-install [Cycle] at a time and exposes a
// short status line for display.
package update
