// Package core provides the foundational domain types shared by the assistant
// packages. It defines:
//
//   - Messages (role tagged conversation records, optionally carrying a
//     capability call)
//   - Sessions (the record of one orchestrated question as it moves through
//     the stage machine) and the SessionStore contract
//   - Tasks (units of work handed to worker agents)
//   - The error taxonomy used across agent, tool and engine packages
//
// Implementation concerns (model backends, registries, persistence) live in
// their own packages and depend on core, never the other way around.
package core
