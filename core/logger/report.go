package logger

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg structpb.Struct
		if err := protojson.Unmarshal(line, &msg); err != nil {
			return err
		}
		handler(entryFromStruct(&msg))
	}
	return scanner.Err()
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	RunCommand     RunCommandReport     `json:"run_command_report"`
	UnknownCommand UnknownCommandReport `json:"unknown_command_report"`
	CommandError   CommandErrorReport   `json:"command_error_report"`
	Plugin         PluginReport         `json:"plugin_report"`
	Interrupts     int                  `json:"interrupts"`
}

func NewReport() *Report {
	return &Report{
		CommandError: CommandErrorReport{Errors: NewPathCounter("command", "kind")},
		Plugin:       PluginReport{Errors: NewPathCounter("plugin", "error")},
	}
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	r.Sessions.Increment(le.SessionID)

	switch le.Type {
	case EventSessionStart:
		// Counted above.
	case EventRunCommand:
		r.RunCommand.update(le)
	case EventUnknownCommand:
		r.UnknownCommand.update(le)
	case EventCommandError:
		r.CommandError.update(le)
	case EventPluginSpawn, EventPluginExit, EventPluginError:
		r.Plugin.update(le)
	case EventInterrupt:
		r.Interrupts++
	default:
		r.InvalidEntries.Increment(string(le.Type))
	}
}

type RunCommandReport struct {
	// Name of the command as typed.
	CommandNames StrCounter `json:"command_names"`
	// Kind of declaration the name resolved to.
	DeclKinds StrCounter `json:"decl_kinds"`
}

func (r *RunCommandReport) update(le *LogEntry) {
	r.CommandNames.Increment(le.String("command"))
	r.DeclKinds.Increment(le.String("decl_kind"))
}

type UnknownCommandReport struct {
	CommandNames StrCounter `json:"command_names"`
}

func (r *UnknownCommandReport) update(le *LogEntry) {
	r.CommandNames.Increment(le.String("command"))
}

type CommandErrorReport struct {
	Errors *PathCounter `json:"errors"`
}

func (r *CommandErrorReport) update(le *LogEntry) {
	r.Errors.Increment(le.String("command"), le.String("kind"))
}

type PluginReport struct {
	Spawns StrCounter   `json:"spawns"`
	Exits  StrCounter   `json:"exits"`
	Errors *PathCounter `json:"errors"`
}

func (r *PluginReport) update(le *LogEntry) {
	plugin := le.String("plugin")
	switch le.Type {
	case EventPluginSpawn:
		r.Spawns.Increment(plugin)
	case EventPluginExit:
		r.Exits.Increment(plugin)
	case EventPluginError:
		r.Errors.Increment(plugin, le.String("error"))
	}
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implements a custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts tuples of strings.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given tuple.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Get returns the count for a tuple.
func (ctr *PathCounter) Get(vals ...string) int {
	return ctr.internal[toKey(vals...)]
}

// MarshalJSON implements a custom JSON marshaler, most frequent first.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
