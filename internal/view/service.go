package view

import (
	"context"

	"htbot/internal/upstream"
	logx "htbot/pkg/logx"
)

// Source is the slice of the upstream store the read views need.
type Source interface {
	CurrentStatus(ctx context.Context, destination string) (upstream.StatusResponse, error)
	History(ctx context.Context, destination string) (upstream.HistoryResponse, error)
}

// HistoryView is everything the history page renders.
type HistoryView struct {
	Devices  []Device
	Selected Device
	Page     Page
}

// Empty reports whether the destination has no devices.
func (v HistoryView) Empty() bool { return len(v.Devices) == 0 }

type Service struct {
	src Source
	log logx.Logger
}

func New(src Source, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{src: src, log: log}
}

// Status returns the roster of destination. Failures yield an empty roster.
func (s *Service) Status(ctx context.Context, destination string) []Device {
	resp, err := s.src.CurrentStatus(ctx, destination)
	if err != nil {
		s.log.Warn("current status failed", logx.String("destination", destination), logx.Err(err))
		return nil
	}
	return Roster(resp)
}

// History resolves the device to show (the requested one when bound to the
// destination, else the default) and cuts the requested page of its history.
// It makes one status call and, when the roster is non-empty, one history call.
func (s *Service) History(ctx context.Context, destination, deviceID string, page int) HistoryView {
	devs := s.Status(ctx, destination)
	sel, ok := Select(devs, deviceID)
	if !ok {
		return HistoryView{Page: BuildPage(upstream.HistoryResponse{}, "", page)}
	}
	resp, err := s.src.History(ctx, destination)
	if err != nil {
		s.log.Warn("history failed", logx.String("destination", destination), logx.Err(err))
		resp = upstream.HistoryResponse{}
	}
	return HistoryView{Devices: devs, Selected: sel, Page: BuildPage(resp, sel.ID, page)}
}
