package display

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/scorelink/go/internal/relay"
	"github.com/mcdev12/scorelink/go/internal/score"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ScoreboardServiceName is the fully-qualified name of the scoreboard RPC service
	ScoreboardServiceName = "scorelink.v1.ScoreboardService"

	SubmitCommandProcedure = "/" + ScoreboardServiceName + "/SubmitCommand"
	GetScoreboardProcedure = "/" + ScoreboardServiceName + "/GetScoreboard"
)

// ScoreboardService exposes the device over Connect using well-known message types
type ScoreboardService struct {
	board Scoreboard
}

// NewScoreboardService creates the service
func NewScoreboardService(board Scoreboard) *ScoreboardService {
	return &ScoreboardService{board: board}
}

// SubmitCommand takes the command token as a StringValue
func (s *ScoreboardService) SubmitCommand(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	cmd, err := score.ParseCommand(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.board.Submit(ctx, cmd); err != nil {
		if errors.Is(err, relay.ErrNotRunning) {
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// GetScoreboard returns the scoreboard view as a Struct
func (s *ScoreboardService) GetScoreboard(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	view := NewScoreboardView(s.board.Snapshot())
	msg, err := structpb.NewStruct(view.fields())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to build scoreboard struct: %w", err))
	}
	return connect.NewResponse(msg), nil
}

// NewScoreboardServiceHandler builds an HTTP handler serving both procedures. It
// returns the path prefix to mount it on.
func NewScoreboardServiceHandler(board Scoreboard, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := NewScoreboardService(board)

	submit := connect.NewUnaryHandler(SubmitCommandProcedure, svc.SubmitCommand, opts...)
	get := connect.NewUnaryHandler(GetScoreboardProcedure, svc.GetScoreboard, opts...)

	return "/" + ScoreboardServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SubmitCommandProcedure:
			submit.ServeHTTP(w, r)
		case GetScoreboardProcedure:
			get.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// NewScoreboardClients returns Connect clients for both procedures, for tools and tests
func NewScoreboardClients(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) (
	*connect.Client[wrapperspb.StringValue, emptypb.Empty],
	*connect.Client[emptypb.Empty, structpb.Struct],
) {
	return connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+SubmitCommandProcedure, opts...),
		connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetScoreboardProcedure, opts...)
}
