package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rahul/kestrel/internal/store"
)

// Notifier delivers unsolicited output to a session's owner. The chat
// gateways satisfy this.
type Notifier interface {
	Send(sessionID string, text string) error
}

// Scheduler polls for due scheduled tasks and runs each one as a regular
// engine turn, relaying the final response to the owning session.
type Scheduler struct {
	engine   *Engine
	store    *store.Store
	notifier Notifier
	interval time.Duration
}

func NewScheduler(engine *Engine, st *store.Store, notifier Notifier) *Scheduler {
	return &Scheduler{
		engine:   engine,
		store:    st,
		notifier: notifier,
		interval: 30 * time.Second,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Println("scheduler: started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	tasks, err := s.store.GetPendingTasks()
	if err != nil {
		log.Printf("scheduler: polling tasks: %v", err)
		return
	}

	for _, t := range tasks {
		log.Printf("scheduler: running task %d for session %s: %s", t.ID, t.SessionID, t.Description)

		prompt := fmt.Sprintf("[Scheduled task firing: %q. Produce the output or reminder for the user. Do not schedule it again.]", t.Description)
		response, ok := s.runTurn(ctx, t.SessionID, prompt)
		if !ok {
			continue
		}

		if err := s.store.UpdateTaskLastRun(t.ID); err != nil {
			log.Printf("scheduler: updating last run for task %d: %v", t.ID, err)
		}
		// Interval zero marks a one-shot task.
		if t.Interval == 0 {
			if err := s.store.DeleteTask(t.SessionID, t.ID); err != nil {
				log.Printf("scheduler: deleting one-shot task %d: %v", t.ID, err)
			}
		}

		if s.notifier != nil {
			if err := s.notifier.Send(t.SessionID, "⏰ Scheduled task\n\n"+response); err != nil {
				log.Printf("scheduler: notifying session %s: %v", t.SessionID, err)
			}
		}
	}
}

// runTurn drives one engine turn to its terminal event. Clarification
// requests abort the task run: there is no user present to answer.
func (s *Scheduler) runTurn(ctx context.Context, sessionID, prompt string) (string, bool) {
	for evt := range s.engine.Execute(ctx, sessionID, prompt) {
		switch evt.Type {
		case EventComplete:
			response, _ := evt.Data["response"].(string)
			return response, true
		case EventError:
			log.Printf("scheduler: task turn for %s failed: %v", sessionID, evt.Data["message"])
			return "", false
		case EventClarificationRequested:
			log.Printf("scheduler: task turn for %s needs clarification, skipping", sessionID)
			return "", false
		}
	}
	return "", false
}
