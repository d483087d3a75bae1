package auth

import (
	"context"
	"fmt"

	"github.com/tonimelisma/gfolder/internal/credentials"
)

// Onboard runs the first-time authorization:
//  1. Clears any stale code and refresh token from the credential file and
//     from a
//  2. Calls display with the consent URL
//  3. Waits for the user to write the resulting code into the credential file
//  4. Exchanges the code; the persist hook stores the refresh token. A
//     rejected code is cleared so the next start does not reuse it
//
// a should be built with store.SaveRefreshToken as its persist hook.
func Onboard(ctx context.Context, a *Authority, store *credentials.Store, display func(authURL string)) error {
	if err := store.ClearAuthorization(); err != nil {
		return fmt.Errorf("auth: clearing previous authorization: %w", err)
	}

	a.Forget()

	display(a.AuthCodeURL(NewState()))

	code, err := store.WaitForCode(ctx)
	if err != nil {
		return err
	}

	if _, err := a.ObtainFromCode(ctx, code); err != nil {
		// A code is single use.
		if clearErr := store.ClearAuthorization(); clearErr != nil {
			a.logger.Warn("clearing rejected code", "error", clearErr)
		}

		return err
	}

	return nil
}
