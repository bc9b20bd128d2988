// Package auth resolves the session user from the hosted auth service's
// cookies and guards protected pages.
package auth
