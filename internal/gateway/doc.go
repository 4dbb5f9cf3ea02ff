// Package gateway provides the HTTP client for the group storage API.
//
// Every call runs under a per-request deadline. Reads (FetchGroup,
// ListItems) are retried a small number of times with exponential backoff
// when the failure is transient; writes are sent exactly once and their
// failure is returned to the caller.
//
// # Outcomes
//
// Failures are reported as *Error with a Kind:
//
//   - KindNotFound: 404. ListItems maps it to an empty list.
//   - KindClient: other 4xx. Error() returns the server's message verbatim.
//   - KindServer: 5xx or an undecodable body.
//   - KindNetwork: no response at all.
//   - KindTimeout: the request deadline passed.
//
// A nil error is success. KindOf, IsTransient and IsUnreachable inspect
// wrapped errors.
//
// # Wire format
//
// Group payloads use groupId, groupName and members. Item rows use the
// store's native names (group_id, item_name, assignee, quantity); ItemRecord
// translates them to model.Item. Quantity decodes strings, numbers and null.
//
// Writes carry the X-Mochiyoru-Origin header when the client was built
// WithOrigin, so the change feed can echo it back.
package gateway
