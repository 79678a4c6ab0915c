package env

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultKeepAlive is used when an environment does not specify keep_alive
const DefaultKeepAlive = "2m"

// EnvOptions holds environment level options
type EnvOptions struct {
	KeepAlive        string `json:"keep_alive"`
	DisableDiscovery bool   `json:"disable_discovery"`
}

// DefaultEnvOptions returns options with the service defaults
func DefaultEnvOptions() EnvOptions {
	return EnvOptions{KeepAlive: DefaultKeepAlive}
}

// Duration parses keep_alive
func (o EnvOptions) Duration() (time.Duration, error) {
	return time.ParseDuration(o.normalized().KeepAlive)
}

func (o EnvOptions) normalized() EnvOptions {
	if o.KeepAlive == "" {
		o.KeepAlive = DefaultKeepAlive
	}
	return o
}

// MarshalJSON always writes keep_alive, falling back to the default
func (o EnvOptions) MarshalJSON() ([]byte, error) {
	type alias EnvOptions
	return json.Marshal(alias(o.normalized()))
}

// UnmarshalJSON substitutes defaults for missing keys
func (o *EnvOptions) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}

	type alias EnvOptions
	v := alias(DefaultEnvOptions())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*o = EnvOptions(v).normalized()
	return nil
}

// Tpl references a template known to the service
type Tpl struct {
	Tpl        string                 `json:"tpl"`
	Parameters map[string]interface{} `json:"parameters"`
}

// NewTpl creates a template reference
func NewTpl(name string, parameters map[string]interface{}) Tpl {
	if parameters == nil {
		parameters = map[string]interface{}{}
	}
	return Tpl{Tpl: name, Parameters: parameters}
}

// MarshalJSON writes an empty object for missing parameters
func (t Tpl) MarshalJSON() ([]byte, error) {
	type alias Tpl
	if t.Parameters == nil {
		t.Parameters = map[string]interface{}{}
	}
	return json.Marshal(alias(t))
}

// UnmarshalJSON requires the tpl key
func (t *Tpl) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if err := requireKeys("tpl", data, "tpl"); err != nil {
		return err
	}

	type alias Tpl
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Parameters == nil {
		v.Parameters = map[string]interface{}{}
	}

	*t = Tpl(v)
	return nil
}

// InputEnv describes the environment a caller wants
type InputEnv struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Templates   []Tpl      `json:"templates"`
	Options     EnvOptions `json:"options"`
}

// NewInputEnv creates an input environment with default options.
// The name is not validated here, the service rejects bad names.
func NewInputEnv(name string, templates ...Tpl) *InputEnv {
	if templates == nil {
		templates = []Tpl{}
	}
	return &InputEnv{
		Name:      name,
		Templates: templates,
		Options:   DefaultEnvOptions(),
	}
}

// TemplateCounts returns the number of instantiations requested per template
func (e *InputEnv) TemplateCounts() map[string]int {
	counts := make(map[string]int)
	for _, t := range e.Templates {
		counts[t.Tpl]++
	}
	return counts
}

// MarshalJSON writes an empty list for missing templates
func (e InputEnv) MarshalJSON() ([]byte, error) {
	type alias InputEnv
	if e.Templates == nil {
		e.Templates = []Tpl{}
	}
	return json.Marshal(alias(e))
}

// UnmarshalJSON requires name and fills in defaults for the rest
func (e *InputEnv) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if err := requireKeys("input env", data, "name"); err != nil {
		return err
	}

	type alias InputEnv
	v := alias{Options: DefaultEnvOptions()}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Templates == nil {
		v.Templates = []Tpl{}
	}

	*e = InputEnv(v)
	return nil
}

// ContainerData describes one container created by the service
type ContainerData struct {
	ID       string         `json:"id"`
	Hostname string         `json:"hostname"`
	Ports    map[string]int `json:"ports"`
}

// UnmarshalJSON requires id, hostname and ports
func (c *ContainerData) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if err := requireKeys("container", data, "id", "hostname", "ports"); err != nil {
		return err
	}

	type alias ContainerData
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Ports == nil {
		v.Ports = map[string]int{}
	}

	*c = ContainerData(v)
	return nil
}

// TplData is the result of one template instantiation
type TplData struct {
	Containers map[string]*ContainerData `json:"containers"`
}

// UnmarshalJSON requires containers
func (t *TplData) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if err := requireKeys("template data", data, "containers"); err != nil {
		return err
	}

	type alias TplData
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Containers == nil {
		v.Containers = map[string]*ContainerData{}
	}

	*t = TplData(v)
	return nil
}

// OutputEnv is the service's view of a running environment
type OutputEnv struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	WsDir           string                `json:"ws_dir"`
	MountDir        string                `json:"mount_dir"`
	NetID           string                `json:"net_id"`
	Created         string                `json:"created"`
	KeepAlive       string                `json:"keep_alive"`
	ExternalAddress string                `json:"external_address"`
	Templates       map[string][]*TplData `json:"templates"`
}

// UnmarshalJSON requires id, external_address and templates
func (o *OutputEnv) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if err := requireKeys("output env", data, "id", "external_address", "templates"); err != nil {
		return err
	}

	type alias OutputEnv
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Templates == nil {
		v.Templates = map[string][]*TplData{}
	}

	*o = OutputEnv(v)
	return nil
}

// CreatedAt parses the creation timestamp
func (o *OutputEnv) CreatedAt() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, o.Created)
}

// PatchEnv is a delta applied to a running environment
type PatchEnv struct {
	StopContainers    []string `json:"stop_containers"`
	RestartContainers []string `json:"restart_containers"`
	Templates         []Tpl    `json:"templates"`
}

// MarshalJSON writes empty lists instead of null
func (p PatchEnv) MarshalJSON() ([]byte, error) {
	type alias PatchEnv
	if p.StopContainers == nil {
		p.StopContainers = []string{}
	}
	if p.RestartContainers == nil {
		p.RestartContainers = []string{}
	}
	if p.Templates == nil {
		p.Templates = []Tpl{}
	}
	return json.Marshal(alias(p))
}

// TplInfoParam describes a declared template parameter
type TplInfoParam struct {
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Mandatory   bool        `json:"mandatory"`
	Default     interface{} `json:"default"`
}

// TplInfo is template metadata published by the service
type TplInfo struct {
	Description string                   `json:"description"`
	Parameters  map[string]*TplInfoParam `json:"parameters"`
	DataDir     []string                 `json:"data_dir"`
}

// UnmarshalJSON fills in empty parameters and data dirs
func (t *TplInfo) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}

	type alias TplInfo
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Parameters == nil {
		v.Parameters = map[string]*TplInfoParam{}
	}
	if v.DataDir == nil {
		v.DataDir = []string{}
	}

	*t = TplInfo(v)
	return nil
}

// DecodeError reports a required key missing from a wire entity
type DecodeError struct {
	Entity string
	Key    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: missing required key %q", e.Entity, e.Key)
}

func requireKeys(entity string, data []byte, keys ...string) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for _, key := range keys {
		v, ok := raw[key]
		if !ok || isNull(v) {
			return &DecodeError{Entity: entity, Key: key}
		}
	}

	return nil
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
