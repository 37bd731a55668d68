package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/couchplay/server/game/catalog"
	"github.com/couchplay/server/game/service"
	"github.com/couchplay/server/game/session"
)

// Ops is the operator surface: an MCP server exposing read access to rooms
// and matches plus a kill switch for stuck rooms.
type Ops struct {
	rooms     *session.Manager
	matches   service.MatchStore
	games     *catalog.Catalog
	mcpServer *server.MCPServer
}

// NewOps creates the MCP ops server over the given collaborators.
func NewOps(rooms *session.Manager, matches service.MatchStore, games *catalog.Catalog) *Ops {
	o := &Ops{
		rooms:   rooms,
		matches: matches,
		games:   games,
	}

	o.initMCPServer()
	return o
}

// initMCPServer initializes the MCP server with all tools
func (o *Ops) initMCPServer() {
	o.mcpServer = server.NewMCPServer(
		"Couchplay Server",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Couchplay party-game server - operator interface

Rooms are created by players over HTTP; phones connect as controllers over
websocket. These tools inspect and manage live rooms.

AVAILABLE TOOLS:
- list_games: List the playable game catalog
- list_rooms: List all active rooms with status and player counts
- room_state: Latest simulation snapshot for one room
- finish_room: Force-finish a stuck room
- match_history: Recently completed matches`),
	)

	// Register all tools
	o.registerTools()
}

// registerTools registers all MCP tools
func (o *Ops) registerTools() {
	o.mcpServer.AddTool(mcp.Tool{
		Name:        "list_games",
		Description: "List the playable game catalog",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, o.handleListGames)

	o.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all active rooms with their status, game and player count",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, o.handleListRooms)

	o.mcpServer.AddTool(mcp.Tool{
		Name:        "room_state",
		Description: "Get the latest simulation snapshot for one room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID to inspect",
				},
			},
			Required: []string{"room_id"},
		},
	}, o.handleRoomState)

	o.mcpServer.AddTool(mcp.Tool{
		Name:        "finish_room",
		Description: "Force-finish a room, stopping its simulation clock",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID to finish",
				},
			},
			Required: []string{"room_id"},
		},
	}, o.handleFinishRoom)

	o.mcpServer.AddTool(mcp.Tool{
		Name:        "match_history",
		Description: "List recently completed matches, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum matches to return (default 10)",
				},
			},
		},
	}, o.handleMatchHistory)
}

// GetMCPServer returns the underlying MCP server for serving
func (o *Ops) GetMCPServer() *server.MCPServer {
	return o.mcpServer
}

func (o *Ops) handleListGames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sb strings.Builder
	for _, def := range o.games.List() {
		fmt.Fprintf(&sb, "%s (%s): %d-%d players\n  %s\n", def.Name, def.ID, def.MinPlayers, def.MaxPlayers, def.Description)
	}
	if sb.Len() == 0 {
		return mcp.NewToolResultText("No games in the catalog."), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (o *Ops) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rooms := o.rooms.List()
	if len(rooms) == 0 {
		return mcp.NewToolResultText("No active rooms."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d active room(s):\n", len(rooms))
	for _, room := range rooms {
		info := room.Info()
		fmt.Fprintf(&sb, "- %s  code=%s  game=%s  status=%s  players=%d/%d  tick=%d\n",
			info.RoomID, info.JoinCode, info.GameID, info.Status,
			len(info.Players), info.Settings.MaxPlayers, info.Tick)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (o *Ops) handleRoomState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	roomID, _ := args["room_id"].(string)

	snap, err := o.rooms.RoomState(roomID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (o *Ops) handleFinishRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	roomID, _ := args["room_id"].(string)

	if err := o.rooms.Finish(roomID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Room %s finished.", roomID)), nil
}

func (o *Ops) handleMatchHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 10
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if n, ok := args["limit"].(float64); ok && n > 0 {
			limit = int(n)
		}
	}

	matches := o.matches.List(limit)
	if len(matches) == 0 {
		return mcp.NewToolResultText("No completed matches."), nil
	}

	var sb strings.Builder
	for _, match := range matches {
		fmt.Fprintf(&sb, "- %s  game=%s  room=%s  winner=%s  duration=%dms\n",
			match.ID, match.GameID, match.RoomID, match.WinnerUserID, match.DurationMs)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
