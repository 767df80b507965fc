package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"blendcloud/internal/apierror"
	"blendcloud/internal/config"
	"blendcloud/internal/dto"
	"blendcloud/internal/metrics"
	"blendcloud/internal/model"
	"blendcloud/internal/repository"
	"blendcloud/internal/tenant"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var (
	errCredenciales = apierror.Forbidden("credenciales invalidas")
	errRefresh      = apierror.Forbidden("refresh token invalido o revocado")
	errSupervisor   = apierror.Forbidden("se requiere autorizacion de un supervisor (OWNER o ADMIN)")
)

// Principal is the authenticated caller, taken from a verified access token.
type Principal struct {
	UsuarioID uuid.UUID
	TenantID  uuid.UUID
	Rol       model.Rol
}

// Dispositivo identifies the client a refresh session was issued to.
type Dispositivo struct {
	UserAgent string
	IP        string
}

// Aprobacion records which supervisor authorized an operation and how.
type Aprobacion struct {
	UsuarioID uuid.UUID
	Rol       model.Rol
	Metodo    model.MetodoAprobacion
}

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest, disp Dispositivo) (*dto.LoginResponse, error)
	// Refresh trades a refresh token for a new pair. The stored hash rotates on
	// every use, so a refresh token is single-use.
	Refresh(ctx context.Context, refreshToken string, disp Dispositivo) (*dto.LoginResponse, error)
	RevokeAll(ctx context.Context, usuarioID uuid.UUID) (int64, error)
	Revoke(ctx context.Context, usuarioID, sesionID uuid.UUID) error
	ListSessions(ctx context.Context, usuarioID uuid.UUID) ([]dto.SesionAuthResponse, error)
	VerifyAccess(token string) (*Principal, error)
	// VerifySupervisor matches secret against the PIN, then the password, of
	// every active OWNER/ADMIN of the bound tenant.
	VerifySupervisor(ctx context.Context, secret string) (*Aprobacion, error)
}

type authService struct {
	usuarios repository.UsuarioRepository
	tenants  repository.TenantRepository
	sesiones repository.SesionAuthRepository
	cfg      *config.Config
	now      func() time.Time
}

func NewAuthService(
	usuarios repository.UsuarioRepository,
	tenants repository.TenantRepository,
	sesiones repository.SesionAuthRepository,
	cfg *config.Config,
) AuthService {
	return &authService{usuarios: usuarios, tenants: tenants, sesiones: sesiones, cfg: cfg, now: time.Now}
}

// ── Login ─────────────────────────────────────────────────────────────────────

func (s *authService) Login(ctx context.Context, req dto.LoginRequest, disp Dispositivo) (resp *dto.LoginResponse, err error) {
	defer func() { metrics.AuthOperacionesTotal.WithLabelValues("login", metrics.Resultado(err)).Inc() }()

	user, err := s.usuarios.FindByEmailForLogin(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errCredenciales
		}
		return nil, internal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errCredenciales
	}

	ctx, err = tenant.Bind(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	if err := s.checkActivo(ctx, user); err != nil {
		return nil, err
	}

	now := s.now()
	sesion := &model.SesionAuth{
		ID:         uuid.New(),
		UsuarioID:  user.ID,
		UserAgent:  disp.UserAgent,
		IP:         disp.IP,
		LastUsedAt: now,
		ExpiresAt:  now.Add(s.refreshTTL()),
	}
	refresh, err := s.signRefresh(user, sesion.ID, now)
	if err != nil {
		return nil, internal(err)
	}
	sesion.Salt, sesion.RefreshHash, err = saltedHash(refresh)
	if err != nil {
		return nil, internal(err)
	}
	if err := s.sesiones.Create(ctx, sesion); err != nil {
		return nil, internal(err)
	}
	return s.tokenPair(user, sesion.ID, refresh, now)
}

// ── Refresh ───────────────────────────────────────────────────────────────────

func (s *authService) Refresh(ctx context.Context, refreshToken string, disp Dispositivo) (resp *dto.LoginResponse, err error) {
	defer func() { metrics.AuthOperacionesTotal.WithLabelValues("refresh", metrics.Resultado(err)).Inc() }()

	claims, err := s.parse(refreshToken, tokenRefresh)
	if err != nil {
		return nil, errRefresh
	}
	uid, tid, err := claimIDs(claims)
	if err != nil {
		return nil, errRefresh
	}
	sid, err := uuid.Parse(claimString(claims, "sid"))
	if err != nil {
		return nil, errRefresh
	}

	ctx, err = tenant.Bind(ctx, tid)
	if err != nil {
		return nil, err
	}
	user, err := s.usuarios.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errRefresh
		}
		return nil, internal(err)
	}
	if err := s.checkActivo(ctx, user); err != nil {
		return nil, err
	}

	now := s.now()
	activas, err := s.sesiones.ListActivas(ctx, user.ID, now)
	if err != nil {
		return nil, internal(err)
	}
	// Every live row is hashed and compared so the timing does not reveal
	// which one matched.
	var match *model.SesionAuth
	for i := range activas {
		if subtle.ConstantTimeCompare([]byte(hashToken(activas[i].Salt, refreshToken)), []byte(activas[i].RefreshHash)) == 1 {
			match = &activas[i]
		}
	}
	if match == nil || match.ID != sid {
		return nil, errRefresh
	}

	next, err := s.signRefresh(user, match.ID, now)
	if err != nil {
		return nil, internal(err)
	}
	salt, hash, err := saltedHash(next)
	if err != nil {
		return nil, internal(err)
	}
	ok, err := s.sesiones.Rotate(ctx, match.ID, match.RefreshHash, salt, hash, now, now.Add(s.refreshTTL()))
	if err != nil {
		return nil, internal(err)
	}
	if !ok {
		// Another request rotated this session first: the token was replayed.
		return nil, errRefresh
	}
	return s.tokenPair(user, match.ID, next, now)
}

// ── Revocation ────────────────────────────────────────────────────────────────

func (s *authService) RevokeAll(ctx context.Context, usuarioID uuid.UUID) (n int64, err error) {
	defer func() { metrics.AuthOperacionesTotal.WithLabelValues("revoke_all", metrics.Resultado(err)).Inc() }()
	n, err = s.sesiones.RevokeAll(ctx, usuarioID, s.now())
	if err != nil {
		return 0, internal(err)
	}
	return n, nil
}

func (s *authService) Revoke(ctx context.Context, usuarioID, sesionID uuid.UUID) error {
	ok, err := s.sesiones.Revoke(ctx, usuarioID, sesionID, s.now())
	if err != nil {
		return internal(err)
	}
	if !ok {
		return apierror.NotFound("sesion no encontrada")
	}
	return nil
}

func (s *authService) ListSessions(ctx context.Context, usuarioID uuid.UUID) ([]dto.SesionAuthResponse, error) {
	activas, err := s.sesiones.ListActivas(ctx, usuarioID, s.now())
	if err != nil {
		return nil, internal(err)
	}
	resp := make([]dto.SesionAuthResponse, len(activas))
	for i, a := range activas {
		resp[i] = dto.SesionAuthResponse{
			ID:         a.ID.String(),
			UserAgent:  a.UserAgent,
			IP:         a.IP,
			CreatedAt:  formatTime(a.CreatedAt),
			LastUsedAt: formatTime(a.LastUsedAt),
			ExpiresAt:  formatTime(a.ExpiresAt),
		}
	}
	return resp, nil
}

// ── Verification ──────────────────────────────────────────────────────────────

func (s *authService) VerifyAccess(token string) (*Principal, error) {
	claims, err := s.parse(token, tokenAccess)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeUnauthorized, "Token invalido o expirado", err)
	}
	uid, tid, err := claimIDs(claims)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeUnauthorized, "Token mal formado", err)
	}
	rol, err := model.ParseRol(claimString(claims, "rol"))
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeUnauthorized, "Token mal formado", err)
	}
	return &Principal{UsuarioID: uid, TenantID: tid, Rol: rol}, nil
}

func (s *authService) VerifySupervisor(ctx context.Context, secret string) (*Aprobacion, error) {
	if secret == "" {
		return nil, errSupervisor
	}
	sups, err := s.usuarios.ListSupervisores(ctx)
	if err != nil {
		return nil, internal(err)
	}
	for _, u := range sups {
		if u.PINHash != nil && bcrypt.CompareHashAndPassword([]byte(*u.PINHash), []byte(secret)) == nil {
			return &Aprobacion{UsuarioID: u.ID, Rol: u.Rol, Metodo: model.AprobacionPIN}, nil
		}
	}
	for _, u := range sups {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)) == nil {
			return &Aprobacion{UsuarioID: u.ID, Rol: u.Rol, Metodo: model.AprobacionPassword}, nil
		}
	}
	return nil, errSupervisor
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (s *authService) checkActivo(ctx context.Context, user *model.Usuario) error {
	if !user.Activo {
		return apierror.Forbidden("usuario inactivo")
	}
	t, err := s.tenants.FindByID(ctx, user.TenantID)
	if err != nil {
		return notFoundOr(err, "tenant no encontrado")
	}
	if !t.Activo {
		return apierror.Forbidden("tenant inactivo")
	}
	return nil
}

func (s *authService) accessTTL() time.Duration {
	return time.Duration(s.cfg.JWTAccessMinutes) * time.Minute
}

func (s *authService) refreshTTL() time.Duration {
	return time.Duration(s.cfg.JWTRefreshHours) * time.Hour
}

func (s *authService) tokenPair(user *model.Usuario, sesionID uuid.UUID, refresh string, now time.Time) (*dto.LoginResponse, error) {
	access, err := s.sign(jwt.MapClaims{
		"user_id":    user.ID.String(),
		"tenant_id":  user.TenantID.String(),
		"rol":        string(user.Rol),
		"token_type": tokenAccess,
		"exp":        now.Add(s.accessTTL()).Unix(),
		"iat":        now.Unix(),
	})
	if err != nil {
		return nil, internal(err)
	}
	return &dto.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTTL().Seconds()),
		SesionID:     sesionID.String(),
		User: dto.UsuarioResponse{
			ID:       user.ID.String(),
			TenantID: user.TenantID.String(),
			Email:    user.Email,
			Nombre:   user.Nombre,
			Rol:      string(user.Rol),
		},
	}, nil
}

func (s *authService) signRefresh(user *model.Usuario, sesionID uuid.UUID, now time.Time) (string, error) {
	return s.sign(jwt.MapClaims{
		"user_id":    user.ID.String(),
		"tenant_id":  user.TenantID.String(),
		"sid":        sesionID.String(),
		"jti":        uuid.NewString(),
		"token_type": tokenRefresh,
		"exp":        now.Add(s.refreshTTL()).Unix(),
		"iat":        now.Unix(),
	})
}

func (s *authService) sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

func (s *authService) parse(raw, tokenType string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if claimString(claims, "token_type") != tokenType {
		return nil, errors.New("tipo de token incorrecto")
	}
	return claims, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

func claimIDs(claims jwt.MapClaims) (uuid.UUID, uuid.UUID, error) {
	uid, err := uuid.Parse(claimString(claims, "user_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	tid, err := uuid.Parse(claimString(claims, "tenant_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return uid, tid, nil
}

// saltedHash returns a fresh random salt and sha256(salt || token), both hex.
func saltedHash(token string) (string, string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	salt := hex.EncodeToString(buf)
	return salt, hashToken(salt, token), nil
}

func hashToken(salt, token string) string {
	sum := sha256.Sum256([]byte(salt + token))
	return hex.EncodeToString(sum[:])
}
