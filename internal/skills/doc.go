// Package skills implements the mask skill system: declarative skills
// described by a SKILL.md file, programmatic skills built by linked providers
// or sandboxed WASM modules, and the Registry that decides which tools an
// agent can see.
//
// Every skill exposes one loader tool (use_<name>) that returns its
// instructions. A skill's capability tools are only handed to the agent once
// the skill has been activated by calling its loader.
package skills
