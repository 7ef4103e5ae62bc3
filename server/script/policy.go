package script

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"eleusis-bench/server/agent"
)

// Policy is a decision source written in Lua. The script defines
// decide(obs) and returns a table with optional card_index (0-based) and
// hypothesis fields.
type Policy struct {
	mu     sync.Mutex
	L      *lua.LState
	decide *lua.LFunction
}

func LoadPolicy(path string) (*Policy, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("load policy %s: %w", path, err)
	}
	return newPolicy(L)
}

func PolicyFromString(src string) (*Policy, error) {
	L := lua.NewState()
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return newPolicy(L)
}

func newPolicy(L *lua.LState) (*Policy, error) {
	fn, err := globalFunc(L, "decide")
	if err != nil {
		L.Close()
		return nil, err
	}
	return &Policy{L: L, decide: fn}, nil
}

func (p *Policy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.L.Close()
}

func (p *Policy) Decide(ctx context.Context, obs agent.Observation) (agent.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	L := p.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	in, err := observationTable(L, obs)
	if err != nil {
		return agent.Decision{}, err
	}
	if err := L.CallByParam(lua.P{Fn: p.decide, NRet: 1, Protect: true}, in); err != nil {
		return agent.Decision{}, fmt.Errorf("lua decide: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	var d agent.Decision
	switch v := ret.(type) {
	case *lua.LNilType:
		return d, nil
	case *lua.LTable:
		if n, ok := v.RawGetString("card_index").(lua.LNumber); ok {
			idx := int(n)
			if lua.LNumber(idx) != n {
				return agent.Decision{}, fmt.Errorf("%w: lua card_index %v is not an integer", agent.ErrMalformedDecision, n)
			}
			d.CardIndex = &idx
		}
		if s, ok := v.RawGetString("hypothesis").(lua.LString); ok {
			d.Hypothesis = string(s)
		}
		return d, nil
	default:
		return agent.Decision{}, fmt.Errorf("%w: lua decide returned %s, expected table", agent.ErrMalformedDecision, ret.Type())
	}
}

func observationTable(L *lua.LState, obs agent.Observation) (*lua.LTable, error) {
	hand, err := parseCards(obs.Hand)
	if err != nil {
		return nil, err
	}
	mainline, err := parseCards(obs.Mainline)
	if err != nil {
		return nil, err
	}
	t := L.NewTable()
	t.RawSetString("player", lua.LString(obs.Player))
	t.RawSetString("hand", cardList(L, hand))
	t.RawSetString("mainline", cardList(L, mainline))
	t.RawSetString("your_turn", lua.LBool(obs.YourTurn))
	t.RawSetString("current_turn", lua.LString(obs.CurrentTurn))
	t.RawSetString("deck_left", lua.LNumber(obs.DeckLeft))
	t.RawSetString("round", lua.LNumber(obs.Round))

	sides := L.NewTable()
	for _, s := range obs.Sidelines {
		c, err := parseCards([]string{s.Card})
		if err != nil {
			return nil, err
		}
		line, err := parseCards(s.Mainline)
		if err != nil {
			return nil, err
		}
		st := L.NewTable()
		st.RawSetString("card", cardTable(L, c[0]))
		st.RawSetString("mainline", cardList(L, line))
		sides.Append(st)
	}
	t.RawSetString("sidelines", sides)

	scores := L.NewTable()
	for name, v := range obs.Scores {
		scores.RawSetString(name, lua.LNumber(v))
	}
	t.RawSetString("scores", scores)

	notes := L.NewTable()
	for _, n := range obs.Notes {
		nt := L.NewTable()
		nt.RawSetString("hypothesis", lua.LString(n.Hypothesis))
		nt.RawSetString("result", lua.LString(n.Result))
		notes.Append(nt)
	}
	t.RawSetString("notes", notes)
	return t, nil
}
