package env

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is matched by every LookupError
var ErrNotFound = errors.New("not found")

// LookupKind tells which addressing level failed
type LookupKind int

const (
	NotFoundTemplate LookupKind = iota
	NotFoundTemplateInstance
	NotFoundContainer
)

func (k LookupKind) String() string {
	switch k {
	case NotFoundTemplate:
		return "template"
	case NotFoundTemplateInstance:
		return "template instance"
	case NotFoundContainer:
		return "container"
	default:
		return "unknown"
	}
}

// LookupError is returned by GetContainer
type LookupError struct {
	Kind      LookupKind
	Template  string
	Index     int
	Container string
}

func (e *LookupError) Error() string {
	switch e.Kind {
	case NotFoundTemplate:
		return fmt.Sprintf("template not found: %s", e.Template)
	case NotFoundTemplateInstance:
		return fmt.Sprintf("template %s index %d not found", e.Template, e.Index)
	default:
		return fmt.Sprintf("container not found: %s (template %s index %d)", e.Container, e.Template, e.Index)
	}
}

func (e *LookupError) Is(target error) bool {
	return target == ErrNotFound
}

// GetContainer addresses a container by template name, instantiation index
// and container name. Container names are only unique inside one
// instantiation, so all three are needed.
func (o *OutputEnv) GetContainer(tplName string, tplIdx int, contName string) (*ContainerData, error) {
	tpls, ok := o.Templates[tplName]
	if !ok {
		return nil, &LookupError{Kind: NotFoundTemplate, Template: tplName, Index: tplIdx, Container: contName}
	}

	if tplIdx < 0 || tplIdx >= len(tpls) || tpls[tplIdx] == nil {
		return nil, &LookupError{Kind: NotFoundTemplateInstance, Template: tplName, Index: tplIdx, Container: contName}
	}

	cont, ok := tpls[tplIdx].Containers[contName]
	if !ok || cont == nil {
		return nil, &LookupError{Kind: NotFoundContainer, Template: tplName, Index: tplIdx, Container: contName}
	}

	return cont, nil
}

// ContainerRef is the full address of one container in an environment
type ContainerRef struct {
	Template  string
	Index     int
	Container string
	Data      *ContainerData
}

// Containers flattens the templates mapping. Templates are ordered by name,
// instantiations by index and containers by name.
func (o *OutputEnv) Containers() []ContainerRef {
	var refs []ContainerRef
	for _, tplName := range sortedKeys(o.Templates) {
		for idx, tpl := range o.Templates[tplName] {
			if tpl == nil {
				continue
			}
			for _, contName := range sortedKeys(tpl.Containers) {
				if tpl.Containers[contName] == nil {
					continue
				}
				refs = append(refs, ContainerRef{
					Template:  tplName,
					Index:     idx,
					Container: contName,
					Data:      tpl.Containers[contName],
				})
			}
		}
	}
	return refs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
