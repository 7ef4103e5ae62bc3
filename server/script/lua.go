package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"eleusis-bench/server/engine"
)

func cardTable(L *lua.LState, c engine.Card) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("rank", lua.LString(c.Rank))
	t.RawSetString("suit", lua.LString(c.Suit))
	t.RawSetString("value", lua.LNumber(c.RankValue()))
	t.RawSetString("color", lua.LString(c.Color()))
	t.RawSetString("face", lua.LBool(c.IsFace()))
	t.RawSetString("text", lua.LString(c.String()))
	return t
}

// cardList builds a 1-based Lua array of card tables.
func cardList(L *lua.LState, cs []engine.Card) *lua.LTable {
	t := L.NewTable()
	for _, c := range cs {
		t.Append(cardTable(L, c))
	}
	return t
}

func parseCards(ss []string) ([]engine.Card, error) {
	out := make([]engine.Card, 0, len(ss))
	for _, s := range ss {
		c, err := engine.ParseCard(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func globalFunc(L *lua.LState, name string) (*lua.LFunction, error) {
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("script does not define function %s", name)
	}
	return fn, nil
}
