// Package entitlement decides what the current user may download.
//
// A Gate combines the license store with the free tier quota counter. It
// loads the license once per process, reports Pro or Free, and for Free
// users checks and records downloads against the daily cap. The download
// orchestrator only talks to the Gate and never reads the state files.
package entitlement
