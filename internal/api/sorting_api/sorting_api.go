package sorting_api

import (
	"net/http"

	"github.com/BearBump/SortBox/internal/metrics"
	"github.com/BearBump/SortBox/internal/services/bags"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/BearBump/SortBox/internal/services/sortedbags"
	"github.com/BearBump/SortBox/internal/services/wizard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Deps struct {
	Catalog    *catalog.Service
	Bags       *bags.Service
	SortedBags *sortedbags.Service
	Wizard     *wizard.Service
	Metrics    *metrics.Sorting
	Log        zerolog.Logger
}

type SortingAPI struct {
	catalog *catalog.Service
	bags    *bags.Service
	sorted  *sortedbags.Service
	wizard  *wizard.Service
	metrics *metrics.Sorting
	log     zerolog.Logger
}

func New(d Deps) *SortingAPI {
	return &SortingAPI{
		catalog: d.Catalog,
		bags:    d.Bags,
		sorted:  d.SortedBags,
		wizard:  d.Wizard,
		metrics: d.Metrics,
		log:     d.Log.With().Str("component", "http").Logger(),
	}
}

// Routes mounts every endpoint on a fresh router.
func (a *SortingAPI) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.observe)

	r.Route("/sockets", func(r chi.Router) {
		r.Get("/", a.listSockets)
		r.Post("/", a.createSocket)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getSocket)
			r.Put("/", a.updateSocket)
			r.Delete("/", a.deleteSocket)
			r.Get("/impact", a.socketImpact)
			r.Get("/bag-types", a.socketBagTypes)
			r.Get("/bags", a.socketBags)
		})
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", a.listCategories)
		r.Post("/", a.createCategory)
		r.Put("/{id}", a.updateCategory)
		r.Delete("/{id}", a.deleteCategory)
		r.Get("/{id}/subtypes", a.categorySubtypes)
	})

	r.Route("/bag-types", func(r chi.Router) {
		r.Get("/", a.listBagTypes)
		r.Post("/", a.createBagType)
		r.Post("/bulk/source", a.bulkBagTypeSource)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getBagType)
			r.Put("/", a.updateBagType)
			r.Delete("/", a.deleteBagType)
			r.Get("/subtypes", a.bagTypeSubtypes)
			r.Get("/subtypes/grouped", a.bagTypeSubtypesGrouped)
		})
	})

	r.Route("/subtypes", func(r chi.Router) {
		r.Get("/", a.listSubtypes)
		r.Post("/", a.createSubtype)
		r.Post("/bulk/clear-category", a.bulkClearCategory)
		r.Get("/{id}", a.getSubtype)
		r.Put("/{id}", a.updateSubtype)
		r.Delete("/{id}", a.deleteSubtype)
	})

	r.Route("/persons", func(r chi.Router) {
		r.Get("/", a.listPersons)
		r.Post("/", a.createPerson)
		r.Delete("/{id}", a.deletePerson)
	})

	r.Post("/order", a.reorder)
	r.Get("/stats", a.stats)

	r.Route("/bags", func(r chi.Router) {
		r.Get("/", a.listBags)
		r.Post("/", a.createBag)
		r.Get("/next-id", a.nextBagID)
		r.Get("/by-bag-id/{bagID}", a.getBagByBagID)
		r.Post("/bulk/extra", a.bulkBagExtra)
		r.Post("/bulk/source", a.bulkBagSource)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getBag)
			r.Patch("/", a.updateBag)
			r.Post("/processed", a.markProcessed)
			r.Put("/person", a.assignPerson)
			r.Get("/sorted-bag", a.getSortedBagByBag)
		})
	})

	r.Route("/sorted-bags", func(r chi.Router) {
		r.Get("/", a.listSortedBags)
		r.Post("/", a.createSortedBag)
		r.Get("/{id}", a.getSortedBag)
		r.Patch("/{id}", a.updateSortedBag)
	})

	r.Route("/wizard", func(r chi.Router) {
		r.Post("/", a.wizardStart)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.wizardGet)
			r.Delete("/", a.wizardDiscard)
			r.Put("/socket", a.wizardSocket)
			r.Put("/bag-type", a.wizardBagType)
			r.Put("/subtype", a.wizardSubtype)
			r.Put("/weight", a.wizardWeight)
			r.Post("/commit", a.wizardCommit)
			r.Post("/continue", a.wizardContinue)
		})
	})

	return r
}
