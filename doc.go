// Package turnloop is a conversational agent orchestration runtime
// for Go.
//
// Turnloop runs each user message through a fixed pipeline: restore
// the conversation from a checkpoint, compact history that has grown
// past the token budget, route the message to an action, generate a
// draft response, verify the draft with a judge model, and refine it a
// bounded number of times before persisting the turn.
//
// # Key Features
//
//   - Durable conversation state in Postgres (pgx or database/sql) or
//     in memory
//   - Automatic context compaction with a recent-message window and an
//     LLM-produced summary of the older history
//   - LLM routing between direct answers, tool use, and clarification
//   - Quality verification across six dimensions with a configurable
//     threshold and bounded refinement
//   - Tool system with schema validation
//   - Per-thread turn serialization
//   - Hooks for observability
//
// # Quick Start
//
//	orch, err := turnloop.New(
//	    turnloop.Config{
//	        Client:      llm.NewAnthropicClient(client, "claude-sonnet-4-5-20250929"),
//	        Checkpoints: checkpoint.NewMemoryStore(),
//	    },
//	    turnloop.WithQualityThreshold(0.8),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := orch.ProcessTurn(ctx, "thread-42", "Help me plan a trip to Kyoto")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.ResponseText)
//
// A turn that exhausts its refinement budget still returns the best
// draft; Result.VerificationPassed reports false so the caller can
// decide how to handle it.
package turnloop
