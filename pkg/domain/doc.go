/*
Package domain contains the core data model of the synx synchronization service.

It defines the fundamental entities shared by the object store, the session handle
tables and the global directory backends. This package is kept pure and free of
external dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Status: The lifecycle state of a synchronization object (ACTIVE or one of the terminal states).
  - Handle: A session-local integer reference; LOCAL and GLOBAL handles use disjoint ranges.
  - Entry: The shared-memory mirror of a GLOBAL object, as stored in the Global Directory.
  - ObjectInfo: A read-only introspection row describing a live object.
  - Fence: An external fence that an object can bridge.
  - Hooks: Observability callbacks fired by the object store.
*/
package domain
