// Package signing implements the HMAC-SHA256 request signing protocol
// shared by the proxy and the backend.
//
// A signature covers the canonical form (see package canonical) of
//
//	{"body": <request body>, "request_id": <uuid v4>}
//
// and is sent as 64 lowercase hex characters in the X-Signature header,
// next to the request id in X-Request-Id.
//
// # Signing
//
//	sig, err := signing.Sign(requestID, body, secret)
//
// or, with a reusable key:
//
//	signer, err := signing.NewSigner(secret, canonical.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sig, err := signer.Sign(requestID, body)
//
// # Client Transport
//
// NewTransport creates an http.RoundTripper that signs every outgoing
// request, generating a fresh request id each time:
//
//	client := &http.Client{
//	    Transport: signing.NewTransport(nil, signing.TransportConfig{
//	        Signer: signer,
//	    }),
//	}
//
// # Verification
//
// Verifier and Middleware implement the check the backend performs:
// recompute the signature over the received body and compare in constant
// time.
//
//	mw, err := signing.Middleware(signing.MiddlewareConfig{
//	    Verify: signing.VerifyConfig{Verifier: verifier},
//	})
//
// The shared secret must only ever live on trusted servers. Signer and
// Verifier copy it and never print it.
package signing
