package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/sales-lead-agent/internal/crm"
	"github.com/wolfman30/sales-lead-agent/internal/leads"
)

type stubLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	if len(s.replies) == 0 {
		return LLMResponse{Text: "{}"}, nil
	}
	text := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return LLMResponse{Text: text}, nil
}

type stubAnswerer struct {
	answer   string
	err      error
	requests []AnswerRequest
}

func (s *stubAnswerer) Answer(_ context.Context, req AnswerRequest) (string, error) {
	s.requests = append(s.requests, req)
	return s.answer, s.err
}

// scriptedExtractor merges a queued map per call; a nil entry means "nothing parsed".
type scriptedExtractor struct {
	company string
	script  []map[string]any
	calls   int
}

func (e *scriptedExtractor) Extract(_ context.Context, _ string, prior leads.Fields) (leads.Fields, bool) {
	e.calls++
	if len(e.script) == 0 {
		return prior, false
	}
	next := e.script[0]
	e.script = e.script[1:]
	if next == nil {
		return prior, false
	}
	return prior.Merge(next).WithCompany(e.company), true
}

type fakeCRM struct {
	createResult crm.LeadResult
	createErrs   []error
	slots        []string
	slotsErr     error
	bookErr      error

	created []leads.Fields
	booked  []string
}

func (f *fakeCRM) CreateLead(_ context.Context, fields leads.Fields) (crm.LeadResult, error) {
	f.created = append(f.created, fields)
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return crm.LeadResult{}, err
		}
	}
	return f.createResult, nil
}

func (f *fakeCRM) ListAvailableSlots(context.Context) ([]string, error) {
	return f.slots, f.slotsErr
}

func (f *fakeCRM) BookMeeting(_ context.Context, leadID, slot string) error {
	f.booked = append(f.booked, leadID+"@"+slot)
	return f.bookErr
}

type fakeNotifier struct {
	captured []string
	meetings []string
}

func (n *fakeNotifier) LeadCaptured(_ context.Context, crmID string, _ leads.Fields, _ bool) error {
	n.captured = append(n.captured, crmID)
	return nil
}

func (n *fakeNotifier) MeetingBooked(_ context.Context, crmID string, _ leads.Fields, slot string) error {
	n.meetings = append(n.meetings, crmID+"@"+slot)
	return errors.New("smtp down")
}

type fakeTranscript struct {
	messages []TranscriptMessage
}

func (f *fakeTranscript) Append(_ context.Context, _ string, msgs ...TranscriptMessage) error {
	f.messages = append(f.messages, msgs...)
	return nil
}
