/*
Package domain contains the core models of the FoodAI agent engine.

It defines the values that flow between the agent loop, the capability registry and
the provider sessions. The package is kept free of I/O and persistence concerns.

# Key Entities

  - ToolDescriptor: Name, description and parameter schema of a callable capability.
  - ToolCall / ToolResult: A model-emitted invocation request and its outcome. Failures are data.
  - TraceEntry: The auditable record of one tool invocation inside an agent run.
  - Message: One element of the conversation sent to the language model.
  - Preset: A named agent configuration (system prompt + tool allow-list).
*/
package domain
