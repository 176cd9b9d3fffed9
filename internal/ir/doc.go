// Package ir holds graph definitions in a form independent of how they are
// written down, plus the canonical encoding used to fingerprint them.
//
// Graph definitions come from CUE files through internal/compiler and are
// turned into live graphs by internal/engine. ir imports only internal/data.
//
// Conventions:
//   - JSON tags use snake_case
//   - Canonical JSON carries no floats; float data is encoded through its
//     IEEE 754 bits or its shortest decimal form
//   - Digests are SHA-256 over canonical JSON with a domain prefix
package ir
