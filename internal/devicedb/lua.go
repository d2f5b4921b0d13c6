package devicedb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-descriptors/internal/descriptor"
)

// luaTimeout bounds how long a definition script may run.
var luaTimeout = 5 * time.Second

// camelKeys maps the option names used by herdsman-style definitions onto
// the snake_case names of the JSON/YAML format.
var camelKeys = map[string]string{
	"zigbeeModel":     "zigbee_model",
	"endpointNames":   "endpoint_names",
	"valueMin":        "value_min",
	"valueMax":        "value_max",
	"valueStep":       "value_step",
	"powerOnBehavior": "power_on_behavior",
	"ID":              "id",
}

var featureBuilders = []descriptor.Kind{
	descriptor.KindTemperature,
	descriptor.KindHumidity,
	descriptor.KindPressure,
	descriptor.KindCO2,
	descriptor.KindIlluminance,
	descriptor.KindPM25,
	descriptor.KindNumeric,
	descriptor.KindOnOff,
}

// newSandbox creates a Lua state with only the base, table, string and math
// libraries, minus everything that touches the filesystem or loads code.
func newSandbox(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua %s: %w", lib.name, err)
		}
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "print", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetContext(ctx)
	return L, nil
}

// parseLua runs a definition script. The script declares devices with
// define{...} and custom clusters with cluster{...}; features are built with
// temperature{...}, numeric{...}, onoff{...} and friends.
func parseLua(name string, src []byte) (definitionFile, error) {
	var df definitionFile

	ctx, cancel := context.WithTimeout(context.Background(), luaTimeout)
	defer cancel()
	L, err := newSandbox(ctx)
	if err != nil {
		return df, err
	}
	defer L.Close()

	var devices, clusters []*lua.LTable
	L.SetGlobal("define", L.NewFunction(func(L *lua.LState) int {
		devices = append(devices, L.CheckTable(1))
		return 0
	}))
	L.SetGlobal("cluster", L.NewFunction(func(L *lua.LState) int {
		clusters = append(clusters, L.CheckTable(1))
		return 0
	}))
	for _, kind := range featureBuilders {
		kind := kind
		L.SetGlobal(string(kind), L.NewFunction(func(L *lua.LState) int {
			opts := L.OptTable(1, L.NewTable())
			out := L.NewTable()
			opts.ForEach(func(k, v lua.LValue) { out.RawSet(k, v) })
			out.RawSetString("kind", lua.LString(kind))
			L.Push(out)
			return 1
		}))
	}
	L.SetGlobal("onOff", L.GetGlobal(string(descriptor.KindOnOff)))

	if err := L.DoString(string(src)); err != nil {
		return df, fmt.Errorf("run %s: %w", name, err)
	}

	for i, t := range clusters {
		if err := fromLua(t, &df.Clusters); err != nil {
			return df, fmt.Errorf("cluster %d: %w", i+1, err)
		}
	}
	for i, t := range devices {
		if err := fromLua(t, &df.Devices); err != nil {
			return df, fmt.Errorf("define %d: %w", i+1, err)
		}
	}
	return df, nil
}

// fromLua decodes t and appends it to *out by way of JSON, so Lua
// definitions go through the same decoders as JSON files.
func fromLua[T any](t *lua.LTable, out *[]T) error {
	v := luaToGo(t)
	if m, ok := v.(map[string]interface{}); ok {
		if eps, ok := m["endpoints"]; ok {
			m["endpoints"] = endpointList(eps)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	*out = append(*out, item)
	return nil
}

// endpointList normalizes the endpoints option to a list of {name, id}.
// Lua tables do not keep key order, so a name→id table is ordered by id;
// a list of {name, id} pairs keeps its own order.
func endpointList(v interface{}) interface{} {
	type ep struct {
		Name string      `json:"name"`
		ID   interface{} `json:"id"`
	}
	switch eps := v.(type) {
	case map[string]interface{}:
		out := make([]ep, 0, len(eps))
		for name, id := range eps {
			out = append(out, ep{Name: name, ID: id})
		}
		sort.Slice(out, func(i, j int) bool {
			a, _ := out[i].ID.(float64)
			b, _ := out[j].ID.(float64)
			return a < b
		})
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(eps))
		for _, e := range eps {
			if pair, ok := e.([]interface{}); ok && len(pair) == 2 {
				out = append(out, ep{Name: fmt.Sprint(pair[0]), ID: pair[1]})
				continue
			}
			out = append(out, e)
		}
		return out
	}
	return v
}

// luaToGo converts a Lua value to plain Go values. Tables with only
// consecutive integer keys become slices; other tables become maps. An
// empty table becomes nil.
func luaToGo(v lua.LValue) interface{} {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		n := val.Len()
		count := 0
		val.ForEach(func(lua.LValue, lua.LValue) { count++ })
		if count == 0 {
			return nil
		}
		if n == count {
			list := make([]interface{}, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, luaToGo(val.RawGetInt(i)))
			}
			return list
		}
		m := make(map[string]interface{}, count)
		val.ForEach(func(k, v lua.LValue) {
			key := k.String()
			if snake, ok := camelKeys[key]; ok {
				key = snake
			}
			m[key] = luaToGo(v)
		})
		return m
	}
	return nil
}
