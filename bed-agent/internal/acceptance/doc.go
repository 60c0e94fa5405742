// Package acceptance holds end-to-end tests that drive the HTTP API against a
// scripted generative endpoint.
package acceptance
