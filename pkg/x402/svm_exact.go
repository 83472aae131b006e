package x402

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
)

// computeBudgetProgramID is the well-known SVM ComputeBudget program
// address the structural validator needs to recognise instructions from.
var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	computeBudgetSetComputeUnitPrice = 3 // SetComputeUnitPrice discriminant
	tokenTransferChecked             = 12 // TransferChecked discriminant (SPL Token instruction enum)
)

// ValidateSVMExact performs the structural checks the spec requires over
// the transaction embedded in a payment payload, before any facilitator
// call is made. A violating payload must be rejected with -40201 by the
// caller; this function only reports the violation.
//
// txBase64 is the base64-encoded serialized transaction carried in the
// payment payload's scheme-specific payload.transaction field.
func ValidateSVMExact(txBase64 string, requirement PaymentRequirements, minComputeUnitPrice, maxComputeUnitPrice *uint64) error {
	tx, err := solana.TransactionFromBase64(txBase64)
	if err != nil {
		return fmt.Errorf("decoding transaction: %w", err)
	}
	if len(tx.Message.AccountKeys) == 0 {
		return fmt.Errorf("transaction has no account keys")
	}

	feePayer := tx.Message.AccountKeys[0]

	var sawComputeUnitPrice bool
	var sawTransfer bool

	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			return fmt.Errorf("instruction references out-of-range program id index")
		}
		programID := tx.Message.AccountKeys[ix.ProgramIDIndex]

		switch {
		case programID.Equals(computeBudgetProgramID):
			if len(ix.Data) == 0 || ix.Data[0] != computeBudgetSetComputeUnitPrice {
				continue
			}
			if len(ix.Data) < 9 {
				return fmt.Errorf("malformed SetComputeUnitPrice instruction")
			}
			price := binary.LittleEndian.Uint64(ix.Data[1:9])
			if minComputeUnitPrice != nil && price < *minComputeUnitPrice {
				return fmt.Errorf("compute unit price %d below minimum %d", price, *minComputeUnitPrice)
			}
			if maxComputeUnitPrice != nil && price > *maxComputeUnitPrice {
				return fmt.Errorf("compute unit price %d above maximum %d", price, *maxComputeUnitPrice)
			}
			sawComputeUnitPrice = true

		case isTokenProgram(programID):
			if len(ix.Data) == 0 || ix.Data[0] != tokenTransferChecked {
				continue
			}
			if err := validateTransferChecked(tx, ix, feePayer, requirement); err != nil {
				return err
			}
			sawTransfer = true
		}
	}

	if !sawTransfer {
		return fmt.Errorf("no TransferChecked instruction found in transaction")
	}
	_ = sawComputeUnitPrice // compute-unit price bounds are optional per network config

	return nil
}

func isTokenProgram(id solana.PublicKey) bool {
	return id.Equals(solana.TokenProgramID) || id.Equals(solana.Token2022ProgramID)
}

// validateTransferChecked enforces: the fee payer is neither the transfer
// authority nor the source account and does not otherwise appear among the
// instruction's account metas; the transferred amount equals the
// requirement's amount exactly; the destination is the canonical
// associated token account for (requirement.PayTo, requirement.Asset).
//
// TransferChecked account order (SPL Token): [source, mint, destination,
// authority, ...multisig signers]. Data layout: [discriminant u8][amount
// u64 LE][decimals u8].
func validateTransferChecked(tx *solana.Transaction, ix solana.CompiledInstruction, feePayer solana.PublicKey, requirement PaymentRequirements) error {
	if len(ix.Accounts) < 4 {
		return fmt.Errorf("malformed TransferChecked instruction: too few accounts")
	}
	if len(ix.Data) < 10 {
		return fmt.Errorf("malformed TransferChecked instruction: short data")
	}

	accountAt := func(i uint16) (solana.PublicKey, error) {
		if int(i) >= len(tx.Message.AccountKeys) {
			return solana.PublicKey{}, fmt.Errorf("account index out of range")
		}
		return tx.Message.AccountKeys[i], nil
	}

	source, err := accountAt(ix.Accounts[0])
	if err != nil {
		return err
	}
	destination, err := accountAt(ix.Accounts[2])
	if err != nil {
		return err
	}
	authority, err := accountAt(ix.Accounts[3])
	if err != nil {
		return err
	}

	if feePayer.Equals(source) {
		return fmt.Errorf("fee payer must not be the transfer source")
	}
	if feePayer.Equals(authority) {
		return fmt.Errorf("fee payer must not be the transfer authority")
	}
	for _, idx := range ix.Accounts {
		acct, err := accountAt(idx)
		if err != nil {
			return err
		}
		if acct.Equals(feePayer) {
			return fmt.Errorf("fee payer must not appear among TransferChecked account metas")
		}
	}

	amount := binary.LittleEndian.Uint64(ix.Data[1:9])
	wantAmount, err := strconv.ParseUint(requirement.Amount, 10, 64)
	if err != nil {
		return fmt.Errorf("requirement amount %q is not a valid integer: %w", requirement.Amount, err)
	}
	if amount != wantAmount {
		return fmt.Errorf("transfer amount %d does not match required amount %d", amount, wantAmount)
	}

	payTo, err := solana.PublicKeyFromBase58(requirement.PayTo)
	if err != nil {
		return fmt.Errorf("requirement payTo %q is not a valid pubkey: %w", requirement.PayTo, err)
	}
	mint, err := solana.PublicKeyFromBase58(requirement.Asset)
	if err != nil {
		return fmt.Errorf("requirement asset %q is not a valid pubkey: %w", requirement.Asset, err)
	}
	wantATA, _, err := associatedtokenaccount.FindAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return fmt.Errorf("deriving canonical ATA: %w", err)
	}
	if !destination.Equals(wantATA) {
		return fmt.Errorf("destination %s is not the canonical ATA %s for (payTo, asset)", destination, wantATA)
	}

	return nil
}
