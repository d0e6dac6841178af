package core

import (
	"context"
	"fmt"

	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/schema"
)

type commandHandler func(ctx context.Context, s *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error)

// commandHandlers is total over command kinds; a kind without a handler
// fails the coverage test, not a runtime lookup.
var commandHandlers = map[schema.CommandKind]commandHandler{
	schema.CmdListThreads:            handleListThreads,
	schema.CmdCreateThread:           handleCreateThread,
	schema.CmdReadThread:             handleReadThread,
	schema.CmdSendMessage:            handleSendMessage,
	schema.CmdInterrupt:              handleInterrupt,
	schema.CmdListModels:             handleListModels,
	schema.CmdListCollaborationModes: handleListCollaborationModes,
	schema.CmdSetCollaborationMode:   handleSetCollaborationMode,
	schema.CmdSubmitUserInput:        handleSubmitUserInput,
	schema.CmdReadLiveState:          handleReadLiveState,
	schema.CmdReadStreamEvents:       handleReadStreamEvents,
	schema.CmdListProjectDirectories: handleListProjectDirectories,
}

// payload extracts a typed command payload, accepting both the pointer
// form the wire decoder produces and the value form in-process callers
// build.
func payload[T any](cmd schema.Command) (T, error) {
	if value, ok := cmd.Payload.(T); ok {
		return value, nil
	}
	if ptr, ok := any(cmd.Payload).(*T); ok {
		return *ptr, nil
	}
	var zero T
	return zero, &schema.ValidationError{
		Context: "command",
		Message: fmt.Sprintf("payload %T does not match kind %q", cmd.Payload, cmd.Kind),
	}
}

func handleListThreads(ctx context.Context, s *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.ListThreadsCommand](cmd)
	if err != nil {
		return nil, err
	}
	page, err := adapter.ListThreads(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, summary := range page.Data {
		s.registry.Observe(summary.ID, adapter.Provider())
	}
	return &schema.ListThreadsResult{ThreadPage: page}, nil
}

// handleCreateThread creates and immediately reads the thread back, so
// the caller gets full metadata without a second round trip and the
// creation is verified to have persisted.
func handleCreateThread(ctx context.Context, s *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.CreateThreadCommand](cmd)
	if err != nil {
		return nil, err
	}
	threadID, err := adapter.CreateThread(ctx, req)
	if err != nil {
		return nil, err
	}
	s.registry.Observe(threadID, adapter.Provider())
	thread, err := adapter.ReadThread(ctx, schema.ReadThreadCommand{ThreadID: threadID})
	if err != nil {
		return nil, err
	}
	return &schema.CreateThreadResult{Thread: thread}, nil
}

func handleReadThread(ctx context.Context, s *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.ReadThreadCommand](cmd)
	if err != nil {
		return nil, err
	}
	thread, err := adapter.ReadThread(ctx, req)
	if err != nil {
		return nil, err
	}
	s.registry.Observe(thread.ID, adapter.Provider())
	return &schema.ReadThreadResult{Thread: thread}, nil
}

func handleSendMessage(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.SendMessageCommand](cmd)
	if err != nil {
		return nil, err
	}
	if err := adapter.SendMessage(ctx, req); err != nil {
		return nil, err
	}
	return &schema.SendMessageResult{}, nil
}

func handleInterrupt(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.InterruptCommand](cmd)
	if err != nil {
		return nil, err
	}
	if err := adapter.Interrupt(ctx, req); err != nil {
		return nil, err
	}
	return &schema.InterruptResult{}, nil
}

func handleListModels(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.ListModelsCommand](cmd)
	if err != nil {
		return nil, err
	}
	models, err := adapter.ListModels(ctx, req)
	if err != nil {
		return nil, err
	}
	return &schema.ListModelsResult{Data: models}, nil
}

func handleListCollaborationModes(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	if _, err := payload[schema.ListCollaborationModesCommand](cmd); err != nil {
		return nil, err
	}
	modes, err := adapter.ListCollaborationModes(ctx)
	if err != nil {
		return nil, err
	}
	return &schema.ListCollaborationModesResult{Data: modes}, nil
}

func handleSetCollaborationMode(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.SetCollaborationModeCommand](cmd)
	if err != nil {
		return nil, err
	}
	owner, err := adapter.SetCollaborationMode(ctx, req)
	if err != nil {
		return nil, err
	}
	return &schema.SetCollaborationModeResult{Mode: req.Mode, OwnerClientID: owner}, nil
}

func handleSubmitUserInput(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.SubmitUserInputCommand](cmd)
	if err != nil {
		return nil, err
	}
	owner, err := adapter.SubmitUserInput(ctx, req)
	if err != nil {
		return nil, err
	}
	return &schema.SubmitUserInputResult{RequestID: req.RequestID, OwnerClientID: owner}, nil
}

func handleReadLiveState(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.ReadLiveStateCommand](cmd)
	if err != nil {
		return nil, err
	}
	state, err := adapter.ReadLiveState(ctx, req)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func handleReadStreamEvents(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	req, err := payload[schema.ReadStreamEventsCommand](cmd)
	if err != nil {
		return nil, err
	}
	events, err := adapter.ReadStreamEvents(ctx, req)
	if err != nil {
		return nil, err
	}
	return &events, nil
}

func handleListProjectDirectories(ctx context.Context, _ *service, adapter provider.Adapter, cmd schema.Command) (schema.ResultPayload, error) {
	if _, err := payload[schema.ListProjectDirectoriesCommand](cmd); err != nil {
		return nil, err
	}
	directories, err := adapter.ListProjectDirectories(ctx)
	if err != nil {
		return nil, err
	}
	return &schema.ListProjectDirectoriesResult{Data: directories}, nil
}
