package callgraph

import (
	"fmt"
	"strings"
)

// UnitKind classifies a normalized front-end record
type UnitKind string

const (
	UnitFunction UnitKind = "function"
	UnitMethod   UnitKind = "method"
	UnitType     UnitKind = "type" // class, struct, impl, interface
	UnitModule   UnitKind = "module"
)

// SourceFile is the normalized record a front-end produces for one file
type SourceFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Source   string `json:"source,omitempty"`
	Units    []Unit `json:"units"`
}

// Unit is a callable unit or a container of callable units
type Unit struct {
	Name       string   `json:"name"`
	Kind       UnitKind `json:"kind"`
	ClassName  string   `json:"class_name,omitempty"`
	Namespace  string   `json:"namespace,omitempty"`
	Visibility string   `json:"visibility,omitempty"`
	Signature  string   `json:"signature,omitempty"`
	Doc        string   `json:"doc,omitempty"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Async      bool     `json:"async,omitempty"`
	Children   []Unit   `json:"children,omitempty"`
}

// MethodSignature identifies a node in the call graph.
// Empty ClassName or Namespace means the field is absent.
type MethodSignature struct {
	FilePath     string `json:"file_path"`
	MethodName   string `json:"method_name"`
	ClassName    string `json:"class_name,omitempty"`
	Namespace    string `json:"namespace,omitempty"`
	RawSignature string `json:"raw_signature"`
}

// DisplayName returns "Class::method" or just the method name
func (s MethodSignature) DisplayName() string {
	if s.ClassName != "" {
		return s.ClassName + "::" + s.MethodName
	}
	return s.MethodName
}

// String implements fmt.Stringer
func (s MethodSignature) String() string {
	return fmt.Sprintf("%s:%s", s.FilePath, s.DisplayName())
}

// CallNode is a method in the call graph
type CallNode struct {
	Signature  MethodSignature `json:"signature"`
	Visibility string          `json:"visibility,omitempty"`
	Doc        string          `json:"doc,omitempty"`
	StartLine  int             `json:"start_line"`
	EndLine    int             `json:"end_line"`
	IsAsync    bool            `json:"is_async"`
	Complexity int             `json:"complexity"`
}

// Contains reports whether line falls inside the node's range
func (n *CallNode) Contains(line int) bool {
	return line >= n.StartLine && line <= n.EndLine
}

// CallKind is the syntactic context of a call site
type CallKind string

const (
	CallDirect      CallKind = "direct"
	CallAsync       CallKind = "async"
	CallCallback    CallKind = "callback"
	CallConditional CallKind = "conditional"
	CallLoop        CallKind = "loop"
	CallTry         CallKind = "try"
)

// CallEdge is one call relationship between two nodes
type CallEdge struct {
	Caller       MethodSignature `json:"caller"`
	Callee       MethodSignature `json:"callee"`
	CallSiteLine int             `json:"call_site_line"`
	CallKind     CallKind        `json:"call_kind"`
}

// EntryPointType categorizes how a method is invoked from outside
type EntryPointType string

const (
	EntryMain          EntryPointType = "main"
	EntryHTTPEndpoint  EntryPointType = "http_endpoint"
	EntryEventHandler  EntryPointType = "event_handler"
	EntryCLICommand    EntryPointType = "cli_command"
	EntryScheduledTask EntryPointType = "scheduled_task"
	EntryTest          EntryPointType = "test"
	EntryPublicAPI     EntryPointType = "public_api"
	EntryUnknown       EntryPointType = "unknown"
)

// EntryPoint is a candidate external entry into the system
type EntryPoint struct {
	Signature  MethodSignature `json:"signature"`
	Type       EntryPointType  `json:"entry_type"`
	Confidence float64         `json:"confidence"`
	Rationale  string          `json:"rationale"`
}

// CallStep is one method visited while tracing a chain
type CallStep struct {
	Method       MethodSignature   `json:"method"`
	Depth        int               `json:"depth"`
	CallSiteLine int               `json:"call_site_line"`
	CallKind     CallKind          `json:"call_kind"`
	Callees      []MethodSignature `json:"callees"`
}

// CallChain is a bounded traversal starting at one entry point
type CallChain struct {
	EntryPoint      EntryPoint `json:"entry_point"`
	Steps           []CallStep `json:"steps"`
	InvolvedFiles   []string   `json:"involved_files"`
	TotalComplexity int        `json:"total_complexity"`
	HasCycles       bool       `json:"has_cycles"`
}

// FileKey returns a stable key for the chain's file set
func (c *CallChain) FileKey() string {
	return strings.Join(c.InvolvedFiles, "\x00")
}

// ChainGroup holds the chains that touch exactly the same set of files
type ChainGroup struct {
	ID                 string            `json:"group_id"`
	Name               string            `json:"name"`
	InvolvedFiles      []string          `json:"involved_files"`
	Chains             []CallChain       `json:"call_chains"`
	PrimaryEntryPoints []EntryPoint      `json:"primary_entry_points"`
	AllMethods         []MethodSignature `json:"all_methods"`
	TotalComplexity    int               `json:"total_complexity"`
}

// GroupStats summarizes a grouping result
type GroupStats struct {
	TotalGroups       int     `json:"total_groups"`
	TotalChains       int     `json:"total_chains"`
	TotalFiles        int     `json:"total_files"`
	LargestGroupSize  int     `json:"largest_group_size"`
	AvgChainsPerGroup float64 `json:"avg_chains_per_group"`
}

// GraphStats summarizes a call graph
type GraphStats struct {
	TotalMethods int `json:"total_methods"`
	TotalCalls   int `json:"total_calls"`
	EntryPoints  int `json:"entry_points"`
	Cycles       int `json:"cycles"`
	MaxInDegree  int `json:"max_in_degree"`
	MaxOutDegree int `json:"max_out_degree"`
}
