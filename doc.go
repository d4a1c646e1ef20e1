// Package scanner implements a reusable QR verification workflow: a camera
// feed decodes tokens, a pluggable ProcessFunc classifies each token, and the
// outcome is shown (and optionally spoken) until the scanner resets.
//
// Scan cycle:
//   - A Scanner moves Idle -> Processing -> Result -> Idle. Only one token is
//     processed at a time, decodes arriving while an attempt is in flight are
//     ignored, and a token that was just handled is debounced for
//     Config.RescanCooldown after the reset.
//   - Every attempt carries an ID. A late result from a superseded attempt is
//     dropped so it never overwrites the screen.
//   - Results clear either through the dwell timer (Config.AutoReset) or an
//     explicit ScanAgain, whichever happens first.
//
// Errors:
//   - ProcessFunc implementations return BusinessDenied, InvalidToken or
//     TransportFailure errors, or an Outcome. Anything that is not a business
//     decision renders the configured fallback message, never raw error text.
//
// Activity sinks:
//   - ActivitySink receives accepted, ignored, dropped and finished scans.
//     Sinks run best-effort (errors are logged) so history can be written to
//     a database without blocking the scan loop.
//
// Transport:
//   - Registry names the mounted scanners, the command handlers and
//     RegisterScannerRoutes expose them over go-command and go-router.
package scanner
