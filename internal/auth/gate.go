package auth

// RequireRole permits the identity when it holds role. Admin satisfies every
// requirement; there is no finer permission model.
func RequireRole(identity *Identity, role Role) error {
	if identity == nil {
		return ErrUnauthorized
	}
	if identity.Role == RoleAdmin {
		return nil
	}
	if role.Valid() && identity.Role == role {
		return nil
	}
	return ErrForbidden
}
