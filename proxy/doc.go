// Package proxy forwards browser calls to the backend, signing each one
// on the server so the shared secret never leaves it.
//
// The browser posts {"endpoint": "/api/website/auth/init", "body": {...}}
// to the proxy route. The Forwarder generates a request id, signs the
// canonical payload, POSTs the body to the backend and hands back the
// backend's status and JSON body unchanged.
package proxy
