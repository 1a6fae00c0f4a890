package shape

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ioc-labs/surge/internal/config"
)

// Rand is the randomness a Selector needs. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// RequestSpec is one concrete request chosen from the traffic mix.
type RequestSpec struct {
	Name   string
	Method string
	Path   string
	Tags   map[string]string
}

// ChoiceKind is how a choice produces its path.
type ChoiceKind string

const (
	KindStatic ChoiceKind = config.ChoiceStatic
	KindID     ChoiceKind = config.ChoiceID
	KindTerm   ChoiceKind = config.ChoiceTerm
)

// Choice is one weighted entry of the traffic mix.
type Choice struct {
	Name   string
	Kind   ChoiceKind
	Weight float64
	Method string
	Path   string
	IDMin  int
	IDMax  int
	Terms  []string
	Tags   map[string]string
}

// EndpointTag names the choice a request was drawn from.
const EndpointTag = "endpoint"

// ErrNoWeight is returned when the traffic mix has no positive weight.
var ErrNoWeight = errors.New("traffic mix has no positive weight")

// Selector picks requests from a weighted mix.
//
// Selector is immutable after construction and safe for concurrent use as
// long as each caller passes its own Rand.
type Selector struct {
	choices    []Choice
	cumulative []float64
	total      float64
}

// NewSelector builds a selector from choices.
func NewSelector(choices []Choice) (*Selector, error) {
	s := &Selector{}
	for i, c := range choices {
		if c.Weight < 0 {
			return nil, fmt.Errorf("choice %d (%s): negative weight", i, c.Name)
		}
		switch c.Kind {
		case KindStatic:
		case KindID:
			if c.IDMax < c.IDMin {
				return nil, fmt.Errorf("choice %d (%s): idMax < idMin", i, c.Name)
			}
		case KindTerm:
			if len(c.Terms) == 0 {
				return nil, fmt.Errorf("choice %d (%s): no terms", i, c.Name)
			}
		default:
			return nil, fmt.Errorf("choice %d (%s): unknown kind %q", i, c.Name, c.Kind)
		}
		if c.Weight == 0 {
			continue
		}
		c.Tags = choiceTags(c)
		s.total += c.Weight
		s.choices = append(s.choices, c)
		s.cumulative = append(s.cumulative, s.total)
	}
	if s.total <= 0 {
		return nil, ErrNoWeight
	}
	return s, nil
}

// NewSelectorFromConfig builds a selector from the traffic section of a config.
func NewSelectorFromConfig(tc *config.TrafficConfig) (*Selector, error) {
	if tc == nil {
		tc = config.DefaultTraffic()
	}
	choices := make([]Choice, 0, len(tc.Choices))
	for _, c := range tc.Choices {
		kind := ChoiceKind(c.Kind)
		if kind == "" {
			kind = KindStatic
		}
		method := c.Method
		if method == "" {
			method = "GET"
		}
		choices = append(choices, Choice{
			Name:   c.Name,
			Kind:   kind,
			Weight: c.Weight,
			Method: strings.ToUpper(method),
			Path:   c.Path,
			IDMin:  c.IDMin,
			IDMax:  c.IDMax,
			Terms:  c.Terms,
			Tags:   c.Tags,
		})
	}
	return NewSelector(choices)
}

// Select draws one request.
func (s *Selector) Select(rnd Rand) RequestSpec {
	x := rnd.Float64() * s.total
	idx := len(s.choices) - 1
	for i, edge := range s.cumulative {
		if x < edge {
			idx = i
			break
		}
	}
	c := s.choices[idx]

	path := c.Path
	switch c.Kind {
	case KindID:
		id := c.IDMin + rnd.IntN(c.IDMax-c.IDMin+1)
		path = strings.ReplaceAll(path, "{id}", strconv.Itoa(id))
	case KindTerm:
		path = strings.ReplaceAll(path, "{term}", c.Terms[rnd.IntN(len(c.Terms))])
	}

	name := c.Name
	if name == "" {
		name = c.Path
	}
	return RequestSpec{Name: name, Method: c.Method, Path: path, Tags: c.Tags}
}

// choiceTags copies the choice's tags and adds the endpoint tag unless the
// choice sets one itself.
func choiceTags(c Choice) map[string]string {
	tags := make(map[string]string, len(c.Tags)+1)
	for k, v := range c.Tags {
		tags[k] = v
	}
	if tags[EndpointTag] == "" {
		tags[EndpointTag] = c.Name
		if c.Name == "" {
			tags[EndpointTag] = c.Path
		}
	}
	return tags
}

// Choices returns the positive-weight choices in order.
func (s *Selector) Choices() []Choice {
	return append([]Choice(nil), s.choices...)
}
