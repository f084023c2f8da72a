// Package v2 describes the HTTP surface of the registry: the route table, the
// registry specific error codes and a URL builder that generates absolute or
// relative links to every route.
package v2
