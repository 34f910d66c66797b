// Package core contains the authenticated request pipeline: the request
// decorator, the response classifier and the refresh coordinator that keeps a
// single token refresh in flight for any number of concurrent callers.
// Storage, transport and UI adapters depend on this package; core must not
// depend on them.
package core
