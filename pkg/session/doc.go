/*
Package session implements per-client handle namespaces.

A Session belongs to one execution domain and maps small integer handles to
objects in the runtime store. Every handle owns one object reference; closing
a session cancels its pending callbacks and releases every handle it still
holds, exactly as if the client had released them one by one.

Operations pin their session for their duration, so a concurrent Close defers
teardown until the last in-flight operation finishes.
*/
package session
