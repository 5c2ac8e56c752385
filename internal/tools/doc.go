// Package tools defines the tool capability: named, schema-described
// operations the executor can invoke on behalf of a task.
//
// Concrete tools implement the Tool interface and register themselves
// in a Registry. All invocation goes through the Runner, which performs
// parameter validation and permission checks before execution (a
// negative pre-check is a hard stop, the tool is never attempted) and
// converts timeouts into structured failures instead of hanging the
// caller.
package tools
