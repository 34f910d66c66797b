// Package session hosts the UI-boundary side of a failed refresh: clearing
// leftover session artifacts and moving the application back to its
// unauthenticated entry point.
package session
