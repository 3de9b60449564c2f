/*
Package foodai is a tool-orchestration engine for a cooking assistant.

A language model answers user messages and may request tools along the way. Tools are either
local (the kitchen: fridge, shopping list, recipes) or remote, exposed by MCP providers that
each caller reaches with a credential of their own. A preset decides which of those tools an
agent may see.

# Architecture

  - registry: the capability registry. Local and remote tools share one namespace, and every
    failure comes back as data.
  - provider: one lazily connected MCP session per caller and provider, with reconnect-once
    retries and per-tool formatters.
  - preset: resolves an agent id into a system prompt and an allow-list. Unknown ids fail closed.
  - agent: the bounded loop. At most five tool-requesting turns, then a forced summary.
  - session: serialises runs that share a session id, across replicas when redis is configured.
  - persistence/middleware: encrypts stored provider credentials and masks personal data in
    stored transcripts.
  - adapters: memory and redis stores, the OpenAI-compatible model client, and the HTTP and
    MCP servers.

# Usage

	cfg, err := config.Load("foodai.yaml")
	if err != nil {
		log.Fatal(err)
	}

	eng, err := foodai.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	resp := eng.Agent.Run(ctx, agent.Request{
		Caller:  "alice",
		Message: "What can I cook with what is in my fridge?",
	})
	fmt.Println(resp.Answer)
	for _, step := range resp.Trace {
		fmt.Println(step.Description)
	}
*/
package foodai
