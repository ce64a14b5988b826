/*
Package api implements the Reddwarf REST API server: a Kubernetes-shaped
HTTP surface over pkg/version, built on echo/v4.

Every kind (Pod, Service, Namespace, Node) is served by the same generic
handler set, registered once per entry in kindRegistry. GET, POST, PUT,
PATCH and DELETE all translate directly to pkg/version operations; GET
with ?watch=true upgrades the connection to a long-lived, line-delimited
JSON event stream instead of returning a single response body.

Errors never leave this package as bare Go errors: every handler that can
fail returns through writeError, which renders the Kubernetes-style Status
envelope and maps pkg/apierrors.Kind onto an HTTP status code.
*/
package api
