package ethereum

// settlementABIJSON covers the entry points of the remittance settlement
// contract that this client uses.
const settlementABIJSON = `[
  {"inputs":[{"name":"recipient","type":"address"},{"name":"sourceToken","type":"address"},{"name":"targetToken","type":"address"},{"name":"sourceAmount","type":"uint256"},{"name":"minTargetAmount","type":"uint256"},{"name":"memo","type":"string"}],"name":"executeRemittance","outputs":[{"name":"remittanceId","type":"bytes32"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"sourceToken","type":"address"},{"name":"targetToken","type":"address"},{"name":"sourceAmount","type":"uint256"}],"name":"getQuote","outputs":[{"name":"targetAmount","type":"uint256"},{"name":"fee","type":"uint256"},{"name":"exchangeRate","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"user","type":"address"}],"name":"getUserRemittances","outputs":[{"name":"","type":"bytes32[]"}],"stateMutability":"view","type":"function"}
]`

// erc20ABIJSON is the minimal ERC20 surface needed for allowance management.
const erc20ABIJSON = `[
  {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`
