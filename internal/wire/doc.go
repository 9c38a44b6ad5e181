// Package wire defines the relay's JSON shapes. Key material, ciphertext and
// nonces are base64 (standard encoding); ids are opaque strings. Decoding
// into domain types checks widths and reports problems as ValidationError.
package wire
