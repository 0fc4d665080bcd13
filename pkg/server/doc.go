// Package server exposes the sharing router over HTTP: identity and space
// management, turn routing, the approval queue, and document listings. All
// endpoints speak a uniform JSON envelope and map domain errors onto stable
// status codes.
package server
