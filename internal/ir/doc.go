// Package ir provides the shared data types for happens-before analysis.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere; trace numbers decode to int64
//   - An event is write-once after decoding
//   - A field whose value is JSON null is treated as absent
//   - Event ids are the only ordering; there are no wall-clock timestamps
package ir
