/*
Package token implements fungible token mints and token accounts.

A mint defines a token type and the number of decimals its amounts are
expressed in. Balances live in token accounts; each account holds a
single mint and has a single owner. The owner is either a human identity
that signs transactions, or a program derived address that nobody holds a
key for. Moving funds always requires an Authority for the owner, which
can only be obtained from a signature (SignedBy) or by re-deriving the
owner address from its seed material (ProgramSigner).

Every owner has one canonical, associated account per mint. Its address
is derived from the owner and the mint, so it can be created on demand by
whoever needs to pay into it.

Mints and accounts are kept in separate address spaces. A mint can only be
registered by the holder of its key, so nobody can occupy an associated or
program derived address with a mint.
*/
package token
