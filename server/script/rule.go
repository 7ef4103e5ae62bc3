package script

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"eleusis-bench/server/engine"
)

// LoadRule reads a Lua rule file. The file sets the globals name and
// description and defines allowed(cards), where cards is the sequence with
// the candidate last. A Lua error while evaluating counts as a rejection.
func LoadRule(path string) (engine.Rule, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return engine.Rule{}, fmt.Errorf("load rule %s: %w", path, err)
	}
	return newRule(L, path)
}

// RuleFromString is LoadRule for inline source.
func RuleFromString(src string) (engine.Rule, error) {
	L := lua.NewState()
	if err := L.DoString(src); err != nil {
		L.Close()
		return engine.Rule{}, fmt.Errorf("load rule: %w", err)
	}
	return newRule(L, "<inline>")
}

func newRule(L *lua.LState, origin string) (engine.Rule, error) {
	name := strings.TrimSpace(lua.LVAsString(L.GetGlobal("name")))
	desc := strings.TrimSpace(lua.LVAsString(L.GetGlobal("description")))
	fn, err := globalFunc(L, "allowed")
	if err != nil {
		L.Close()
		return engine.Rule{}, fmt.Errorf("%s: %w", origin, err)
	}
	if name == "" || desc == "" {
		L.Close()
		return engine.Rule{}, fmt.Errorf("%s: name and description are required", origin)
	}

	var mu sync.Mutex
	allowed := func(cards []engine.Card) bool {
		mu.Lock()
		defer mu.Unlock()
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, cardList(L, cards)); err != nil {
			return false
		}
		ret := L.Get(-1)
		L.Pop(1)
		return lua.LVAsBool(ret)
	}

	// Short sequences carry no constraint; a rule that rejects them is broken.
	probe, _ := engine.NewCard("7", engine.Hearts)
	if !allowed(nil) || !allowed([]engine.Card{probe}) {
		L.Close()
		return engine.Rule{}, fmt.Errorf("%s: allowed must accept sequences of length 0 and 1", origin)
	}
	return engine.Rule{Name: name, Description: desc, Allowed: allowed}, nil
}
