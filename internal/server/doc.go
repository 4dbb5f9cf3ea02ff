// Package server is the reference storage gateway and live change feed.
//
// Routes:
//
//	POST   /api/groups               create a group, returns {"groupId"}
//	GET    /api/groups/{id}          fetch a group
//	POST   /api/groups/{id}          replace name and members
//	GET    /api/groups/{id}/items    list items in insertion order
//	POST   /api/groups/{id}/items    upsert an item keyed by item_name
//	DELETE /api/groups/{id}/items    delete an item by item_name
//	GET    /api/groups/{id}/feed     websocket change feed
//	GET    /healthz                  liveness
//	GET    /metrics                  prometheus metrics
//
// Writes carrying an X-Mochiyoru-Origin header publish feed events tagged with
// that origin so the writer can drop its own echo.
package server
