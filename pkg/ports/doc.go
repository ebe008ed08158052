/*
Package ports defines the driven ports (interfaces) for the synx object store.

These interfaces decouple the core logic from external implementations, allowing
the store to mirror GLOBAL objects into different shared-state backends.

# Key Interfaces

  - Directory: The Global Directory, a shared region holding one Entry per GLOBAL object.
  - SlotClaimer: Cooperative claim of directory IDs between processes.

The tests subpackage holds the contract suite every Directory adapter runs.
*/
package ports
