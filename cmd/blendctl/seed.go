package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blendcloud/internal/model"
	"blendcloud/internal/tenant"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// usuarioInput describes one user to create inside an existing store.
type usuarioInput struct {
	Email    string
	Nombre   string
	Password string
	PIN      string
	Rol      string
}

// tiendaInput describes a new store and its first OWNER.
type tiendaInput struct {
	Nombre        string
	MaxAbiertas   int
	EmailReportes string
	Owner         usuarioInput
}

// seedTienda creates the tenant row and its OWNER in one transaction. The
// tenants table is not tenant-scoped; the user insert runs with the new tenant
// bound so the filter stamps it.
func seedTienda(ctx context.Context, db *gorm.DB, in tiendaInput, cost int) (*model.Tenant, *model.Usuario, error) {
	if strings.TrimSpace(in.Nombre) == "" {
		return nil, nil, errors.New("el nombre de la tienda es obligatorio")
	}
	t := &model.Tenant{Nombre: in.Nombre, Activo: true, MaxSesionesAbiertas: in.MaxAbiertas}
	if in.EmailReportes != "" {
		t.EmailReportes = &in.EmailReportes
	}
	in.Owner.Rol = string(model.RolOwner)

	var owner *model.Usuario
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("crear tienda: %w", err)
		}
		tctx, err := tenant.Bind(ctx, t.ID)
		if err != nil {
			return err
		}
		owner, err = crearUsuario(tctx, tx, in.Owner, cost)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return t, owner, nil
}

// crearUsuario inserts a user into the tenant bound in ctx.
func crearUsuario(ctx context.Context, db *gorm.DB, in usuarioInput, cost int) (*model.Usuario, error) {
	rol, err := model.ParseRol(strings.ToUpper(in.Rol))
	if err != nil {
		return nil, err
	}
	if in.Email == "" || in.Password == "" {
		return nil, errors.New("email y password son obligatorios")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return nil, err
	}
	u := &model.Usuario{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Nombre:       in.Nombre,
		PasswordHash: string(hash),
		Rol:          rol,
		Activo:       true,
	}
	if u.Nombre == "" {
		u.Nombre = u.Email
	}
	if in.PIN != "" {
		if !rol.PuedeSupervisar() {
			return nil, fmt.Errorf("solo OWNER y ADMIN pueden tener PIN de supervisor")
		}
		pin, err := bcrypt.GenerateFromPassword([]byte(in.PIN), cost)
		if err != nil {
			return nil, err
		}
		s := string(pin)
		u.PINHash = &s
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("ya existe un usuario con email %s", u.Email)
		}
		return nil, fmt.Errorf("crear usuario: %w", err)
	}
	return u, nil
}

// ── Commands ──────────────────────────────────────────────────────────────────

var seedIn tiendaInput

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Crea una tienda con su usuario OWNER",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("max-abiertas") {
			seedIn.MaxAbiertas = cfg.DefaultMaxSesionesAbiertas
		}
		t, owner, err := seedTienda(cmd.Context(), db, seedIn, cfg.BcryptCost)
		if err != nil {
			return err
		}
		log.Info().Str("tenant_id", t.ID.String()).Str("owner", owner.Email).Msg("tienda creada")
		fmt.Fprintln(cmd.OutOrStdout(), t.ID.String())
		return nil
	},
}

var (
	usuarioIn     usuarioInput
	usuarioTenant string
)

var usuarioCmd = &cobra.Command{
	Use:   "usuario",
	Short: "Agrega un usuario a una tienda existente",
	RunE: func(cmd *cobra.Command, args []string) error {
		tid, err := uuid.Parse(usuarioTenant)
		if err != nil {
			return fmt.Errorf("--tenant invalido: %w", err)
		}
		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		ctx, err := tenant.Bind(cmd.Context(), tid)
		if err != nil {
			return err
		}
		u, err := crearUsuario(ctx, db, usuarioIn, cfg.BcryptCost)
		if err != nil {
			return err
		}
		log.Info().Str("tenant_id", tid.String()).Str("email", u.Email).Str("rol", string(u.Rol)).Msg("usuario creado")
		return nil
	},
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedIn.Nombre, "tienda", "", "nombre de la tienda")
	f.IntVar(&seedIn.MaxAbiertas, "max-abiertas", 0, "tope de cajas abiertas (0 = sin tope)")
	f.StringVar(&seedIn.EmailReportes, "email-reportes", "", "destinatario de los reportes de cierre")
	f.StringVar(&seedIn.Owner.Email, "email", "", "email del OWNER")
	f.StringVar(&seedIn.Owner.Nombre, "nombre", "", "nombre del OWNER")
	f.StringVar(&seedIn.Owner.Password, "password", "", "contrasena del OWNER")
	f.StringVar(&seedIn.Owner.PIN, "pin", "", "PIN de supervisor del OWNER")
	_ = seedCmd.MarkFlagRequired("tienda")
	_ = seedCmd.MarkFlagRequired("email")
	_ = seedCmd.MarkFlagRequired("password")

	u := usuarioCmd.Flags()
	u.StringVar(&usuarioTenant, "tenant", "", "ID de la tienda")
	u.StringVar(&usuarioIn.Email, "email", "", "email")
	u.StringVar(&usuarioIn.Nombre, "nombre", "", "nombre")
	u.StringVar(&usuarioIn.Password, "password", "", "contrasena")
	u.StringVar(&usuarioIn.PIN, "pin", "", "PIN de supervisor (OWNER/ADMIN)")
	u.StringVar(&usuarioIn.Rol, "rol", string(model.RolAttendant), "OWNER | ADMIN | ATTENDANT")
	_ = usuarioCmd.MarkFlagRequired("tenant")
	_ = usuarioCmd.MarkFlagRequired("email")
	_ = usuarioCmd.MarkFlagRequired("password")
}
