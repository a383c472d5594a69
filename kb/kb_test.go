package kb

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/orrery/model"
)

func planet(name string) *model.BodyDefinition {
	return &model.BodyDefinition{Name: name, Kind: model.BodyKindPlanet, Radius: 1, Distance: 10}
}

func TestAddAndGetBody(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddBody(planet("Earth")); err != nil {
		t.Fatalf("AddBody error: %v", err)
	}
	got, err := store.GetBody("Earth")
	if err != nil || got.Name != "Earth" {
		t.Fatalf("GetBody returned %#v, %v; want Earth", got, err)
	}
	if _, err := store.GetBody("Pluto"); !errors.Is(err, ErrBodyNotFound) {
		t.Fatalf("GetBody(Pluto) error = %v, want ErrBodyNotFound", err)
	}
}

func TestAddBodyDuplicate(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddBody(planet("Earth")); err != nil {
		t.Fatalf("first AddBody error: %v", err)
	}
	if err := store.AddBody(planet("Earth")); !errors.Is(err, ErrBodyExists) {
		t.Fatalf("duplicate AddBody error = %v, want ErrBodyExists", err)
	}
}

func TestMoonNamesAreScopedByParent(t *testing.T) {
	store := NewKnowledgeBase()
	for _, name := range []string{"Earth", "Mars"} {
		if err := store.AddBody(planet(name)); err != nil {
			t.Fatalf("AddBody %s: %v", name, err)
		}
	}
	for _, parent := range []string{"Earth", "Mars"} {
		moon := &model.BodyDefinition{Name: "Moon", Kind: model.BodyKindMoon, Parent: parent, Radius: 0.5, Distance: 3}
		if err := store.AddBody(moon); err != nil {
			t.Fatalf("AddBody moon of %s: %v", parent, err)
		}
	}
	if store.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", store.Len())
	}
	if _, err := store.GetBody("Mars/Moon"); err != nil {
		t.Fatalf("GetBody(Mars/Moon): %v", err)
	}
}

func TestAddMoonParentValidation(t *testing.T) {
	store := NewKnowledgeBase()
	moon := &model.BodyDefinition{Name: "Io", Kind: model.BodyKindMoon, Parent: "Jupiter", Radius: 0.6, Distance: 5}
	if err := store.AddBody(moon); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("AddBody error = %v, want ErrParentNotFound", err)
	}

	if err := store.AddBody(&model.BodyDefinition{Name: "Sun", Kind: model.BodyKindStar, Radius: 5}); err != nil {
		t.Fatalf("AddBody sun: %v", err)
	}
	onStar := &model.BodyDefinition{Name: "Rock", Kind: model.BodyKindMoon, Parent: "Sun", Radius: 0.1, Distance: 2}
	if err := store.AddBody(onStar); !errors.Is(err, ErrInvalidBody) {
		t.Fatalf("moon of a star error = %v, want ErrInvalidBody", err)
	}

	if err := store.AddBody(planet("Jupiter")); err != nil {
		t.Fatalf("AddBody Jupiter: %v", err)
	}
	if err := store.AddBody(moon); err != nil {
		t.Fatalf("AddBody Io after Jupiter: %v", err)
	}
}

func TestAddBodyValidation(t *testing.T) {
	cases := []struct {
		name string
		def  model.BodyDefinition
	}{
		{"empty name", model.BodyDefinition{Kind: model.BodyKindPlanet, Radius: 1}},
		{"zero radius", model.BodyDefinition{Name: "X", Kind: model.BodyKindPlanet}},
		{"negative distance", model.BodyDefinition{Name: "X", Kind: model.BodyKindPlanet, Radius: 1, Distance: -1}},
		{"planet with parent", model.BodyDefinition{Name: "X", Kind: model.BodyKindPlanet, Parent: "Y", Radius: 1}},
		{"moon without parent", model.BodyDefinition{Name: "X", Kind: model.BodyKindMoon, Radius: 1}},
		{"unknown kind", model.BodyDefinition{Name: "X", Radius: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := tc.def
			if err := NewKnowledgeBase().AddBody(&def); !errors.Is(err, ErrInvalidBody) {
				t.Fatalf("AddBody error = %v, want ErrInvalidBody", err)
			}
		})
	}
}

func TestFromDefinitionsSealsCatalog(t *testing.T) {
	store, err := FromDefinitions(model.DefaultCatalog())
	if err != nil {
		t.Fatalf("FromDefinitions: %v", err)
	}
	if err := store.AddBody(planet("Neptune")); !errors.Is(err, ErrSealed) {
		t.Fatalf("AddBody after seal error = %v, want ErrSealed", err)
	}

	list := store.ListBodies()
	if len(list) != len(model.DefaultCatalog()) {
		t.Fatalf("ListBodies len = %d, want %d", len(list), len(model.DefaultCatalog()))
	}
	for i, def := range model.DefaultCatalog() {
		if list[i].Key() != def.Key() {
			t.Fatalf("ListBodies[%d] = %q, want %q (insertion order)", i, list[i].Key(), def.Key())
		}
	}
}

func TestConcurrentReads(t *testing.T) {
	store := NewKnowledgeBase()
	for i := range 10 {
		if err := store.AddBody(planet(fmt.Sprintf("p-%d", i))); err != nil {
			t.Fatalf("AddBody: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.GetBody(fmt.Sprintf("p-%d", i)); err != nil {
				t.Errorf("GetBody: %v", err)
			}
			_ = store.ListBodies()
		}(i)
	}
	wg.Wait()
}
