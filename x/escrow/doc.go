/*
Package escrow implements a two party token swap.

The initializer locks an amount of token A in a vault and names the amount
of token B it wants in return. The vault is an associated token account
owned by the escrow address, an address derived from the program id, the
initializer and a seed. Nobody holds a key for it, so vault funds can only
move when the escrow handlers re-derive the address from the stored seed
material and bump.

An escrow ends in exactly one of two ways:

	open --> exchange: the taker pays token B to the initializer and
	                   receives the whole vault
	open --> cancel:   the initializer takes the vault back

Both paths close the vault and delete the escrow record. The same
initializer and seed pair may be opened again afterwards.
*/
package escrow
