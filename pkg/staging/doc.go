/*
Package staging holds values that must only take effect after a reboot.

Stage writes the value into the "staged" namespace under the encoded name
"<namespace>*<key>". Apply runs once per boot: each well-formed staged
value is written to its destination with makeDefault set, then removed
from staging.

Apply is safe to run again. A second pass finds either nothing staged or
entries that failed earlier, and re-applying a value is harmless.
Malformed names are logged and never deleted, so they stay visible to an
operator.
*/
package staging
