package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/canon"
	"github.com/yourorg/pet-board/internal/search"
	"github.com/yourorg/pet-board/internal/session"
)

func newRootCmd(out, logOut io.Writer) *cobra.Command {
	var a *app
	root := &cobra.Command{
		Use:           "petctl",
		Short:         "Lost and found pets board client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(cmd.Context(), out, logOut)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a != nil {
				a.close(cmd.Context())
			}
		},
	}
	root.SetOut(out)
	root.SetErr(logOut)
	get := func() *app { return a }

	root.AddCommand(
		latestCmd(get),
		sliderCmd(get),
		showCmd(get),
		searchCmd(get),
		districtsCmd(get),
		loginCmd(get),
		registerCmd(get),
		logoutCmd(get),
		whoamiCmd(get),
		myCmd(get),
		addCmd(get),
		updateCmd(get),
		deleteCmd(get),
		subscribeCmd(get),
	)
	return root
}

func latestCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the newest listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a().feed.Latest(cmd.Context())
			if err != nil {
				return err
			}
			return a().print(res)
		},
	}
}

func sliderCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "slider",
		Short: "Show the featured listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a().feed.Slider(cmd.Context())
			if err != nil {
				return err
			}
			return a().print(res)
		},
	}
}

func showCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, ok, err := a().feed.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("listing %s not found", args[0])
			}
			return a().print(l)
		},
	}
}

func searchCmd(a func() *app) *cobra.Command {
	var q search.Query
	var page int
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search by free text or by district, kind and status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Text = args[0]
			}
			if q.District != "" {
				key, ok := canon.DistrictKey(q.District)
				if !ok {
					return fmt.Errorf("unknown district %q", q.District)
				}
				q.District = key
			}
			if q.Kind != "" {
				q.Kind = canon.Kind(q.Kind)
			}
			c := search.New(a().client, a().norm, a().searchOptions())
			st, err := c.SearchAt(cmd.Context(), q, page)
			if err != nil {
				return err
			}
			return a().print(st)
		},
	}
	cmd.Flags().StringVar(&q.District, "district", "", "district key or name")
	cmd.Flags().StringVar(&q.Kind, "kind", "", "animal kind")
	cmd.Flags().StringVar(&q.Status, "status", "", "found or lost")
	cmd.Flags().IntVar(&page, "page", 1, "result page")
	return cmd
}

func districtsCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "districts",
		Short: "List district keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := map[string]string{}
			for _, k := range canon.DistrictKeys() {
				out[k] = canon.DistrictName(k)
			}
			return a().print(out)
		},
	}
}

func loginCmd(a func() *app) *cobra.Command {
	var cr backend.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cr.Password == "" {
				cr.Password = os.Getenv("PETS_PASSWORD")
			}
			if err := a().session.Login(cmd.Context(), cr); err != nil {
				return err
			}
			return a().print(a().session.Snapshot().User)
		},
	}
	cmd.Flags().StringVar(&cr.Email, "email", "", "account email")
	cmd.Flags().StringVar(&cr.Password, "password", "", "password (or PETS_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func registerCmd(a func() *app) *cobra.Command {
	var r backend.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if r.Password == "" {
				r.Password = os.Getenv("PETS_PASSWORD")
			}
			r.PasswordConfirmation = r.Password
			r.Confirm = true
			if err := a().session.Register(cmd.Context(), r); err != nil {
				return fieldHint(err)
			}
			return a().print(a().session.Snapshot().User)
		},
	}
	cmd.Flags().StringVar(&r.Name, "name", "", "display name")
	cmd.Flags().StringVar(&r.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&r.Email, "email", "", "account email")
	cmd.Flags().StringVar(&r.Password, "password", "", "password (or PETS_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the token and contact details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a().session.Logout()
			return nil
		},
	}
}

func whoamiCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a().session.Restore(cmd.Context()); err != nil {
				return err
			}
			st := a().session.Snapshot()
			if !st.LoggedIn {
				return session.ErrNotAuthenticated
			}
			return a().print(st.User)
		},
	}
}

func myCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "my",
		Short: "List your own listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a().session.Restore(cmd.Context()); err != nil {
				return err
			}
			st := a().session.Snapshot()
			if !st.LoggedIn {
				return session.ErrNotAuthenticated
			}
			return a().print(map[string]any{"listings": st.Listings, "fromCache": st.FromCache})
		},
	}
}

type formFlags struct {
	form   backend.ListingForm
	photos []string
}

func (f *formFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.form.Kind, "kind", "", "animal kind")
	fl.StringVar(&f.form.District, "district", "", "district key or name")
	fl.StringVar(&f.form.Status, "status", "", "found or lost")
	fl.StringVar(&f.form.Description, "description", "", "free text")
	fl.StringVar(&f.form.Mark, "mark", "", "chip or tag")
	fl.StringVar(&f.form.Date, "date", "", "date seen, YYYY-MM-DD")
	fl.StringVar(&f.form.Name, "name", "", "contact name")
	fl.StringVar(&f.form.Phone, "phone", "", "contact phone")
	fl.StringVar(&f.form.Email, "email", "", "contact email")
	fl.StringSliceVar(&f.photos, "photo", nil, "photo file, up to 3")
}

// build opens the photo files; the returned func closes them.
func (f *formFlags) build() (backend.ListingForm, func(), error) {
	form := f.form
	if form.Kind != "" {
		form.Kind = canon.Kind(form.Kind)
	}
	if form.District != "" {
		key, ok := canon.DistrictKey(form.District)
		if !ok {
			return form, func() {}, fmt.Errorf("unknown district %q", form.District)
		}
		form.District = key
	}
	if len(f.photos) > len(form.Photos) {
		return form, func() {}, fmt.Errorf("at most %d photos", len(form.Photos))
	}
	var files []*os.File
	closeAll := func() {
		for _, fh := range files {
			_ = fh.Close()
		}
	}
	for i, path := range f.photos {
		fh, err := os.Open(path)
		if err != nil {
			closeAll()
			return form, func() {}, err
		}
		files = append(files, fh)
		form.Photos[i] = &backend.PhotoFile{Filename: filepath.Base(path), Content: fh}
	}
	return form, closeAll, nil
}

func addCmd(a func() *app) *cobra.Command {
	var f formFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Post a new listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			form, done, err := f.build()
			if err != nil {
				return err
			}
			defer done()
			if err := a().session.Restore(cmd.Context()); err != nil {
				return err
			}
			id, err := a().session.AddListing(cmd.Context(), form)
			if errors.Is(err, session.ErrQueuedLocally) {
				a().log.Warn("backend unreachable, listing kept locally", "id", id)
				return a().print(map[string]any{"id": id, "queued": true})
			}
			if err != nil {
				return fieldHint(err)
			}
			return a().print(map[string]any{"id": id, "queued": false})
		},
	}
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func updateCmd(a func() *app) *cobra.Command {
	var f formFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit one of your listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, done, err := f.build()
			if err != nil {
				return err
			}
			defer done()
			if err := a().session.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := a().session.UpdateListing(cmd.Context(), args[0], form); err != nil {
				return fieldHint(err)
			}
			return a().print(map[string]any{"id": args[0], "updated": true})
		},
	}
	f.bind(cmd)
	return cmd
}

func deleteCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one of your listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a().session.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := a().session.DeleteListing(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a().print(map[string]any{"id": args[0], "deleted": true})
		},
	}
}

func subscribeCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <email>",
		Short: "Subscribe an email to news",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a().session.Subscribe(cmd.Context(), args[0]); err != nil {
				return fieldHint(err)
			}
			return a().print(map[string]any{"email": args[0], "subscribed": true})
		},
	}
}

// fieldHint renders per-field validation messages one per line.
func fieldHint(err error) error {
	var ae *backend.APIError
	if !errors.As(err, &ae) || len(ae.FieldErrors) == 0 {
		return err
	}
	var b strings.Builder
	b.WriteString("validation failed:")
	for _, line := range strings.Split(ae.Message, "; ") {
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	return fmt.Errorf("%s: %w", b.String(), backend.ErrValidation)
}
